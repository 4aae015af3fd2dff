package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ServerConfig describes one external tool provider.
type ServerConfig struct {
	Name    string            `json:"-"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Enabled bool              `json:"enabled"`
}

type configFile struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads provider definitions from a JSON config file. A missing
// file is not an error; it yields an empty list.
func LoadConfig(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read provider config: %w", err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse provider config %s: %w", filepath.Base(path), err)
	}

	names := make([]string, 0, len(file.Servers))
	for name := range file.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		cfg := file.Servers[name]
		cfg.Name = name
		configs = append(configs, cfg)
	}
	return configs, nil
}

// SaveConfig writes provider definitions back to a JSON config file.
func SaveConfig(path string, configs []ServerConfig) error {
	file := configFile{Servers: make(map[string]ServerConfig, len(configs))}
	for _, cfg := range configs {
		file.Servers[cfg.Name] = cfg
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal provider config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write provider config: %w", err)
	}
	return nil
}
