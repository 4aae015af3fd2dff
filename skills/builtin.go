package skills

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dmcode/reagent/tools"
)

// RegisterBuiltins adds the skills that ship with the binary.
func RegisterBuiltins(m *Manager) {
	m.Register(DatabaseExpert())
	m.Register(FrontendDeveloper())
	m.Register(GoExpert())
}

// DatabaseExpert helps with SQL and schema work.
func DatabaseExpert() Skill {
	return &Definition{
		Meta: Metadata{
			Name:        "database_expert",
			DisplayName: "Database Expert",
			Description: "SQL queries, schema design, and migrations",
			Keywords:    []string{"sql", "database", "postgres", "mysql", "sqlite", "migration", "schema", "query", "index", "table"},
			Patterns: []string{
				`\b(select|insert|update|delete)\b.*\b(from|into|set)\b`,
				`\bcreate\s+(table|index|view)\b`,
			},
			Priority: 10,
			Version:  "1.0.0",
		},
		Prompt: strings.TrimSpace(`
You have database expertise. When working with SQL:
- Prefer explicit column lists over SELECT *.
- Wrap schema changes in transactions where the engine supports it.
- Point out missing indexes on columns used in WHERE and JOIN clauses.
- Treat user-supplied values as parameters, never string concatenation.`),
	}
}

// FrontendDeveloper helps with web UI work.
func FrontendDeveloper() Skill {
	return &Definition{
		Meta: Metadata{
			Name:        "frontend_developer",
			DisplayName: "Frontend Developer",
			Description: "HTML, CSS, and component-based UI work",
			Keywords:    []string{"frontend", "react", "component", "css", "html", "javascript", "typescript", "ui", "layout", "browser"},
			Patterns: []string{
				`\.(tsx|jsx|css|scss|html)\b`,
				`\buse(State|Effect|Memo|Callback)\b`,
			},
			Priority: 10,
			Version:  "1.0.0",
		},
		Prompt: strings.TrimSpace(`
You have frontend expertise. When working on UI code:
- Keep components small and props explicit.
- Prefer semantic HTML elements over styled divs.
- Check for accessibility basics: labels, alt text, focus handling.`),
	}
}

// GoExpert helps with Go code and carries a go_doc lookup tool.
func GoExpert() Skill {
	return &Definition{
		Meta: Metadata{
			Name:        "go_expert",
			DisplayName: "Go Expert",
			Description: "Go language, modules, and toolchain",
			Keywords:    []string{"golang", "go.mod", "goroutine", "channel", "interface", "go test", "go build", "gofmt"},
			Patterns: []string{
				`\bfunc\s+\w+\s*\(`,
				`\bpackage\s+\w+`,
				`\.go\b`,
			},
			Priority: 5,
			Version:  "1.0.0",
		},
		Prompt: strings.TrimSpace(`
You have Go expertise. When working on Go code:
- Return errors explicitly and wrap them with %w when adding context.
- Accept interfaces, return concrete types.
- Keep goroutine lifetimes tied to a context.
- Use the go_doc tool to look up standard library and module documentation.`),
		Toolset: []tools.Tool{goDocTool()},
	}
}

const goDocTimeout = 15 * time.Second

func goDocTool() tools.Tool {
	return tools.Tool{
		Name:        "go_doc",
		Description: "Show Go documentation for a package or symbol. Arguments: {\"target\": \"package[.Symbol]\"}",
		Run: func(args map[string]any) (string, error) {
			target, err := tools.StringArg(args, "target")
			if err != nil {
				return "", err
			}
			cmd := exec.Command("go", "doc", target)
			done := make(chan struct{})
			var out []byte
			var runErr error
			go func() {
				out, runErr = cmd.CombinedOutput()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(goDocTimeout):
				if cmd.Process != nil {
					cmd.Process.Kill()
				}
				return "", fmt.Errorf("go doc %s timed out", target)
			}
			if runErr != nil {
				return "", fmt.Errorf("go doc %s: %w: %s", target, runErr, strings.TrimSpace(string(out)))
			}
			return string(out), nil
		},
	}
}
