// Package tools defines the callable-tool contract consumed by the agent
// loop and a set of builtin tools for file inspection, code search, and
// command execution.
//
// A Tool is a named function taking a structured argument object and
// returning observation text. The Registry maps names to tools; later
// registrations win on name collision, which is how skill and MCP tools
// override builtins.
package tools
