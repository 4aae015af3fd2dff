package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Access restricts which paths the filesystem tools may touch. Hidden paths
// are invisible to every tool; read-only paths reject writes.
type Access struct {
	Hidden   []string
	ReadOnly []string
}

// restricted reports whether path matches any of the glob patterns.
func restricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// ReadFileTool returns a tool that reads an entire file.
func ReadFileTool(access Access) Tool {
	return Tool{
		Name:        "read_file",
		Description: `Read the entire content of a file. Arguments: {"path": string}`,
		Run: func(args map[string]any) (string, error) {
			path, err := StringArg(args, "path")
			if err != nil {
				return "", err
			}
			hidden, err := restricted(path, access.Hidden)
			if err != nil {
				return "", err
			}
			if hidden {
				return "", fmt.Errorf("access denied: path %q is hidden", path)
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read file %q: %w", path, err)
			}
			return string(content), nil
		},
	}
}

// WriteFileTool returns a tool that writes a file wholesale, creating parent
// directories as needed.
func WriteFileTool(access Access) Tool {
	return Tool{
		Name:        "write_file",
		Description: `Write content to a file, replacing it entirely. Arguments: {"path": string, "content": string}`,
		Run: func(args map[string]any) (string, error) {
			path, err := StringArg(args, "path")
			if err != nil {
				return "", err
			}
			content, err := StringArg(args, "content")
			if err != nil {
				return "", err
			}
			for _, check := range []struct {
				patterns []string
				label    string
			}{
				{access.Hidden, "hidden"},
				{access.ReadOnly, "read-only"},
			} {
				match, err := restricted(path, check.patterns)
				if err != nil {
					return "", err
				}
				if match {
					return "", fmt.Errorf("access denied: path %q is %s", path, check.label)
				}
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return "", fmt.Errorf("create directory %q: %w", dir, err)
				}
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("write file %q: %w", path, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

// ListDirectoryTool returns a tool that lists directory entries. Hidden
// entries are filtered out of the listing.
func ListDirectoryTool(access Access) Tool {
	return Tool{
		Name:        "list_directory",
		Description: `List the entries of a directory. Arguments: {"path": string}`,
		Run: func(args map[string]any) (string, error) {
			path, err := StringArg(args, "path")
			if err != nil {
				return "", err
			}
			hidden, err := restricted(path, access.Hidden)
			if err != nil {
				return "", err
			}
			if hidden {
				return "", fmt.Errorf("access denied: path %q is hidden", path)
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("list directory %q: %w", path, err)
			}
			var lines []string
			for _, entry := range entries {
				full := filepath.Join(path, entry.Name())
				if skip, _ := restricted(full, access.Hidden); skip {
					continue
				}
				if entry.IsDir() {
					lines = append(lines, entry.Name()+"/")
				} else {
					lines = append(lines, entry.Name())
				}
			}
			if len(lines) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}
