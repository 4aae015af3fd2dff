// Package skills augments the agent with task-conditional expertise. A
// skill bundles extra instruction text and optional tools behind metadata
// (keywords, regex patterns, priority) that a Selector scores against the
// task. The Manager owns the catalog and the per-task activation state.
package skills

import (
	"fmt"

	"github.com/dmcode/reagent/tools"
)

// Metadata describes a skill for selection and display.
type Metadata struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Patterns    []string `json:"patterns"`
	Priority    int      `json:"priority"`
	Version     string   `json:"version"`
}

// Skill is the capability set every catalog entry implements. The interface
// is closed: only types in this package satisfy it.
type Skill interface {
	Metadata() Metadata
	PromptAddition() string
	Tools() []tools.Tool
	Activate() error
	Deactivate() error

	skill()
}

// Definition is the concrete skill type. Built-in skills are Definitions
// declared in code; file-defined skills are Definitions decoded from catalog
// entries. Definitions are immutable after construction.
type Definition struct {
	Meta         Metadata
	Prompt       string
	Toolset      []tools.Tool
	OnActivate   func() error
	OnDeactivate func() error
}

func (d *Definition) Metadata() Metadata { return d.Meta }

func (d *Definition) PromptAddition() string { return d.Prompt }

func (d *Definition) Tools() []tools.Tool { return d.Toolset }

func (d *Definition) Activate() error {
	if d.OnActivate != nil {
		if err := d.OnActivate(); err != nil {
			return fmt.Errorf("activate skill %s: %w", d.Meta.Name, err)
		}
	}
	return nil
}

func (d *Definition) Deactivate() error {
	if d.OnDeactivate != nil {
		if err := d.OnDeactivate(); err != nil {
			return fmt.Errorf("deactivate skill %s: %w", d.Meta.Name, err)
		}
	}
	return nil
}

func (d *Definition) skill() {}
