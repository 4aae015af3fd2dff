package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dmcode/reagent/tools"
)

// Manager owns the set of provider clients and projects their tools into
// the agent's registry. A provider that fails to start simply contributes
// zero tools; it never fails the manager.
type Manager struct {
	mu      sync.Mutex
	configs map[string]ServerConfig
	clients map[string]*Client
}

// NewManager creates a Manager over the given provider configurations.
func NewManager(configs []ServerConfig) *Manager {
	m := &Manager{
		configs: make(map[string]ServerConfig, len(configs)),
		clients: make(map[string]*Client),
	}
	for _, cfg := range configs {
		m.configs[cfg.Name] = cfg
	}
	return m
}

// StartAll starts every enabled provider. Individual start failures are
// logged and skipped.
func (m *Manager) StartAll(ctx context.Context) {
	for _, name := range m.configNames() {
		m.mu.Lock()
		cfg := m.configs[name]
		m.mu.Unlock()
		if !cfg.Enabled {
			continue
		}
		if err := m.StartServer(ctx, name); err != nil {
			slog.Warn("provider failed to start", "provider", name, "error", err)
		}
	}
}

func (m *Manager) configNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartServer starts one provider by name.
func (m *Manager) StartServer(ctx context.Context, name string) error {
	m.mu.Lock()
	cfg, ok := m.configs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown provider %q", name)
	}
	if existing, running := m.clients[name]; running && existing.IsRunning() {
		m.mu.Unlock()
		return fmt.Errorf("provider %q already running", name)
	}
	m.mu.Unlock()

	client := NewClient(cfg.Name, cfg.Command, cfg.Args, cfg.Env)
	if err := client.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[name] = client
	m.mu.Unlock()
	return nil
}

// StopServer stops one provider by name.
func (m *Manager) StopServer(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("provider %q is not running", name)
	}
	client.Stop()
	return nil
}

// StopAll stops every running provider.
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
}

// ServerStatus is one row of the provider status report.
type ServerStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
	Tools   int    `json:"tools"`
}

// Servers reports the configured providers and their state, ordered by name.
func (m *Manager) Servers() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]ServerStatus, 0, len(m.configs))
	for name, cfg := range m.configs {
		status := ServerStatus{Name: name, Enabled: cfg.Enabled}
		if client, ok := m.clients[name]; ok && client.IsRunning() {
			status.Running = true
			status.Tools = len(client.Tools())
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Tools returns registry entries for every tool advertised by running
// providers, namespaced as mcp_<provider>_<tool> to avoid collisions.
func (m *Manager) Tools() []tools.Tool {
	m.mu.Lock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	clients := make([]*Client, 0, len(names))
	for _, name := range names {
		clients = append(clients, m.clients[name])
	}
	m.mu.Unlock()

	var out []tools.Tool
	for _, client := range clients {
		if !client.IsRunning() {
			continue
		}
		for _, info := range client.Tools() {
			out = append(out, m.registryTool(client, info))
		}
	}
	return out
}

// RegisterTools merges the provider tools into a registry.
func (m *Manager) RegisterTools(reg *tools.Registry) {
	for _, t := range m.Tools() {
		reg.Register(t)
	}
}

func (m *Manager) registryTool(client *Client, info ToolInfo) tools.Tool {
	name := fmt.Sprintf("mcp_%s_%s", client.Name(), info.Name)
	description := info.Description
	if len(info.InputSchema) > 0 {
		if compact, err := compactJSON(info.InputSchema); err == nil {
			description = fmt.Sprintf("%s Arguments (JSON schema): %s", description, compact)
		}
	}

	toolName := info.Name
	return tools.Tool{
		Name:        name,
		Description: description,
		Run: func(args map[string]any) (string, error) {
			return client.CallTool(context.Background(), toolName, args)
		},
	}
}

func compactJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
