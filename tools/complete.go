package tools

// TaskCompleteName is the dedicated completion tool. The agent loop treats
// it specially: a successful invocation terminates the task with the tool's
// observation as the final answer, and a string or missing action_input is
// coerced into the message argument.
const TaskCompleteName = "task_complete"

// TaskCompleteTool returns the completion tool.
func TaskCompleteTool() Tool {
	return Tool{
		Name:        TaskCompleteName,
		Description: `Signal that the task is finished. Arguments: {"message": optional string summarizing the outcome}`,
		Run: func(args map[string]any) (string, error) {
			message := OptionalStringArg(args, "message", "")
			if message == "" {
				return "task completed successfully", nil
			}
			return message, nil
		},
	}
}

// DefaultRegistry builds a registry with the builtin toolset: file
// inspection, code search, command execution, and completion.
func DefaultRegistry(access Access, allowedCommands []string) *Registry {
	r := NewRegistry()
	r.Register(ReadFileTool(access))
	r.Register(WriteFileTool(access))
	r.Register(ListDirectoryTool(access))
	r.Register(SearchCodeTool(access))
	r.Register(ExecuteCommandTool(allowedCommands))
	r.Register(TaskCompleteTool())
	return r
}
