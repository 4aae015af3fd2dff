package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dmcode/reagent/tools"
)

// Manager owns the skill catalog and the currently active subset. The
// catalog is read-mostly and safe to share across concurrent task loops;
// activation state is per-Manager, so each loop works on its own Clone.
type Manager struct {
	selector *Selector

	mu      sync.Mutex
	catalog map[string]Skill
	active  []string
}

// NewManager creates a Manager with an empty catalog.
func NewManager(selector *Selector) *Manager {
	if selector == nil {
		selector = NewSelector()
	}
	return &Manager{
		selector: selector,
		catalog:  make(map[string]Skill),
	}
}

// Register adds a skill to the catalog, replacing any existing entry with
// the same name.
func (m *Manager) Register(s Skill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[s.Metadata().Name] = s
}

// Unregister removes a skill from the catalog. An active skill is
// deactivated first.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.catalog[name]; ok {
		for i, active := range m.active {
			if active == name {
				if err := s.Deactivate(); err != nil {
					slog.Warn("skill deactivation failed", "skill", name, "error", err)
				}
				m.active = append(m.active[:i], m.active[i+1:]...)
				break
			}
		}
		delete(m.catalog, name)
	}
}

// Get returns a skill by name.
func (m *Manager) Get(name string) (Skill, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.catalog[name]
	return s, ok
}

// Names returns all catalog skill names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.catalog))
	for name := range m.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the catalog skills ordered by name.
func (m *Manager) List() []Skill {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.catalog))
	for name := range m.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Skill, len(names))
	for i, name := range names {
		out[i] = m.catalog[name]
	}
	return out
}

// SelectForTask scores the catalog against the task without changing
// activation state.
func (m *Manager) SelectForTask(ctx context.Context, task string) []string {
	return m.selector.Select(ctx, task, m.List())
}

// ApplyForTask selects skills for the task and makes them the active set:
// previously active skills are deactivated first, then the new selection is
// activated. Returns the names of the now-active skills.
func (m *Manager) ApplyForTask(ctx context.Context, task string) ([]string, error) {
	selected := m.SelectForTask(ctx, task)
	if err := m.DeactivateAll(); err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, nil
	}
	if err := m.Activate(selected...); err != nil {
		return nil, err
	}
	slog.Info("skills activated", "skills", selected, "task_preview", preview(task, 60))
	return selected, nil
}

// Activate makes the named skills the active set, invoking each skill's
// activation hook. Activation is all-or-nothing: if any hook fails, skills
// activated so far are rolled back and no skill remains active.
func (m *Manager) Activate(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var activated []Skill
	for _, name := range names {
		s, ok := m.catalog[name]
		if !ok {
			m.rollback(activated)
			return fmt.Errorf("unknown skill %q", name)
		}
		if err := s.Activate(); err != nil {
			m.rollback(activated)
			return err
		}
		activated = append(activated, s)
	}

	m.active = append([]string(nil), names...)
	return nil
}

func (m *Manager) rollback(activated []Skill) {
	for _, s := range activated {
		if err := s.Deactivate(); err != nil {
			slog.Warn("skill rollback failed", "skill", s.Metadata().Name, "error", err)
		}
	}
	m.active = nil
}

// DeactivateAll clears the active set, invoking deactivation hooks.
func (m *Manager) DeactivateAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, name := range m.active {
		if s, ok := m.catalog[name]; ok {
			if err := s.Deactivate(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.active = nil
	return firstErr
}

// ActiveNames returns the names of the active skills in activation order.
func (m *Manager) ActiveNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.active...)
}

// ActivePromptAdditions concatenates the instruction fragments of the
// active skills, in activation order.
func (m *Manager) ActivePromptAdditions() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var parts []string
	for _, name := range m.active {
		if s, ok := m.catalog[name]; ok {
			if p := s.PromptAddition(); p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// ActiveTools returns the tools contributed by the active skills. A later
// skill wins on name collision.
func (m *Manager) ActiveTools() []tools.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := make(map[string]tools.Tool)
	var order []string
	for _, name := range m.active {
		s, ok := m.catalog[name]
		if !ok {
			continue
		}
		for _, t := range s.Tools() {
			if _, seen := byName[t.Name]; !seen {
				order = append(order, t.Name)
			}
			byName[t.Name] = t
		}
	}
	out := make([]tools.Tool, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// Clone returns a Manager sharing this catalog's skills but with its own
// empty activation state. Each task loop clones the base manager so
// concurrent tasks never see each other's active set.
func (m *Manager) Clone() *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	catalog := make(map[string]Skill, len(m.catalog))
	for name, s := range m.catalog {
		catalog[name] = s
	}
	return &Manager{selector: m.selector, catalog: catalog}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
