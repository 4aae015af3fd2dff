package tools

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const defaultCommandTimeout = 60 * time.Second

// commandAllowed checks a command against the allowlist. Patterns are
// regular expressions; an invalid pattern falls back to exact comparison.
func commandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// ExecuteCommandTool returns a tool that runs an allowlisted OS command and
// returns its combined output.
func ExecuteCommandTool(allowedCommands []string) Tool {
	description := `Execute a shell command and return its output. Arguments: {"command": string}`
	if len(allowedCommands) > 0 {
		description += "\nAllowed command patterns:\n- " + strings.Join(allowedCommands, "\n- ")
	} else {
		description += "\nNo commands are currently allowed."
	}

	return Tool{
		Name:        "execute_command",
		Description: description,
		Run: func(args map[string]any) (string, error) {
			command, err := StringArg(args, "command")
			if err != nil {
				return "", err
			}
			if !commandAllowed(command, allowedCommands) {
				return "", fmt.Errorf("command %q is not in the list of allowed commands", command)
			}

			parts := strings.Fields(command)
			cmd := exec.Command(parts[0], parts[1:]...)

			done := make(chan struct{})
			var output []byte
			var runErr error
			go func() {
				output, runErr = cmd.CombinedOutput()
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(defaultCommandTimeout):
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
				<-done
				return "", fmt.Errorf("command %q timed out after %s", command, defaultCommandTimeout)
			}

			if runErr != nil {
				return "", fmt.Errorf("command failed: %v\noutput:\n%s", runErr, output)
			}
			if len(output) == 0 {
				return "command completed with no output", nil
			}
			return string(output), nil
		},
	}
}
