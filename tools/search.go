package tools

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxSearchMatches = 200

// SearchCodeTool returns a tool that searches files under a root directory
// for a regular expression, reporting file:line matches.
func SearchCodeTool(access Access) Tool {
	return Tool{
		Name:        "search_code",
		Description: `Search files recursively for a regular expression. Arguments: {"pattern": string, "path": optional string (default "."), "glob": optional string filename filter like "*.go"}`,
		Run: func(args map[string]any) (string, error) {
			pattern, err := StringArg(args, "pattern")
			if err != nil {
				return "", err
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			root := OptionalStringArg(args, "path", ".")
			nameGlob := OptionalStringArg(args, "glob", "")

			var matches []string
			walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil // unreadable entries are skipped, not fatal
				}
				if hidden, _ := restricted(path, access.Hidden); hidden {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					if name := d.Name(); name == ".git" || name == "node_modules" {
						return filepath.SkipDir
					}
					return nil
				}
				if nameGlob != "" {
					if ok, _ := filepath.Match(nameGlob, d.Name()); !ok {
						return nil
					}
				}
				found, err := scanFile(path, re, &matches)
				if err != nil {
					return nil
				}
				if found && len(matches) >= maxSearchMatches {
					return fs.SkipAll
				}
				return nil
			})
			if walkErr != nil {
				return "", fmt.Errorf("search %q: %w", root, walkErr)
			}
			if len(matches) == 0 {
				return "no matches found", nil
			}
			out := strings.Join(matches, "\n")
			if len(matches) >= maxSearchMatches {
				out += fmt.Sprintf("\n[match limit of %d reached]", maxSearchMatches)
			}
			return out, nil
		},
	}
}

func scanFile(path string, re *regexp.Regexp, matches *[]string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			found = true
			*matches = append(*matches, fmt.Sprintf("%s:%d: %s", path, lineNum, strings.TrimSpace(line)))
			if len(*matches) >= maxSearchMatches {
				break
			}
		}
	}
	return found, scanner.Err()
}
