// Package config loads the agent's YAML configuration. Settings are read
// from the user-level file (~/.reagent/config.yaml) first and then the
// project-level file (./.reagent/config.yaml); project values override user
// values field by field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Agent  AgentConfig  `yaml:"agent"`
	Skills SkillsConfig `yaml:"skills"`
	MCP    MCPConfig    `yaml:"mcp"`
	Tools  ToolsConfig  `yaml:"tools"`
	Server ServerConfig `yaml:"server"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AgentConfig tunes the execution loop.
type AgentConfig struct {
	MaxSteps      int  `yaml:"max_steps"`
	Planning      bool `yaml:"planning"`
	Compression   bool `yaml:"compression"`
	CompressEvery int  `yaml:"compress_every"`
	KeepRecent    int  `yaml:"keep_recent"`
}

// SkillsConfig controls the skill catalog and selection.
type SkillsConfig struct {
	Dir         string  `yaml:"dir"`
	MaxActive   int     `yaml:"max_active"`
	MinScore    float64 `yaml:"min_score"`
	LLMFallback bool    `yaml:"llm_fallback"`
	Watch       bool    `yaml:"watch"`
}

// MCPConfig points at the external tool-provider definitions.
type MCPConfig struct {
	ConfigPath string `yaml:"config_path"`
}

// ToolsConfig restricts the builtin tools.
type ToolsConfig struct {
	AllowedCommands []string         `yaml:"allowed_commands"`
	Filesystem      FilesystemConfig `yaml:"filesystem"`
}

// FilesystemConfig holds doublestar glob lists applied to file tools.
type FilesystemConfig struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxSteps:      20,
			Planning:      true,
			Compression:   true,
			CompressEvery: 5,
			KeepRecent:    3,
		},
		Skills: SkillsConfig{
			MaxActive: 3,
			MinScore:  0.1,
		},
		MCP: MCPConfig{
			ConfigPath: ".reagent/mcp_config.json",
		},
		Tools: ToolsConfig{
			AllowedCommands: []string{
				`^git (status|log|diff|show|branch)`,
				`^go (build|test|vet|doc|list)`,
				`^ls\b`, `^cat\b`, `^grep\b`, `^find\b`, `^echo\b`,
			},
			Filesystem: FilesystemConfig{
				Hidden: []string{"**/.git/**", "**/.env", "**/node_modules/**"},
			},
		},
		Server: ServerConfig{Addr: ":8750"},
	}
}

const (
	userConfigDir  = ".reagent"
	configFileName = "config.yaml"
)

// Load builds the effective configuration: defaults, overlaid with the
// user-level file, overlaid with the project-level file. Missing files are
// skipped silently; malformed files are errors.
func Load() (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := mergeFile(&cfg, filepath.Join(home, userConfigDir, configFileName)); err != nil {
			return cfg, err
		}
	}
	if err := mergeFile(&cfg, filepath.Join(".", userConfigDir, configFileName)); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile reads a single config file over the defaults. Used by tests and
// the --config flag.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := mergeFile(&cfg, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// yaml.Unmarshal into the existing struct only touches keys present in
	// the file, which gives field-level override semantics.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
