package core

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"cairn/internal/tools"
)

// ReadFileArgs defines the parameters for the read_file tool.
type ReadFileArgs struct {
	Path      string `json:"path" jsonschema:"description=The file path to read,required"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=Start line number (1-based). If not specified starts from beginning"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"description=End line number (1-based inclusive). If not specified reads to end"`
}

// WriteFileArgs defines the parameters for the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"description=The file path to write,required"`
	Content string `json:"content" jsonschema:"description=The full file content,required"`
}

// EditFileArgs defines the parameters for the edit_file tool.
type EditFileArgs struct {
	Path    string `json:"path" jsonschema:"description=The file path to edit,required"`
	OldText string `json:"old_text" jsonschema:"description=The exact text to find and replace (must match exactly including whitespace),required"`
	NewText string `json:"new_text" jsonschema:"description=The text to replace old_text with,required"`
}

// ListArgs defines the parameters for the ls tool.
type ListArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list. Defaults to the root"`
}

func cleanPath(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// ReadFile reads a file from the conversation's file state.
func ReadFile() *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read a file from the conversation workspace. Supports line ranges for large files.",
		Parameters:  tools.BuildSchema(ReadFileArgs{}),
		Source:      Source,
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			st, err := state(call)
			if err != nil {
				return nil, err
			}
			var args ReadFileArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "path is required", nil)
			}
			p := cleanPath(args.Path)
			content, ok := st.Files[p]
			if !ok {
				return nil, fmt.Errorf("file not found: %s", p)
			}
			if args.StartLine <= 0 && args.EndLine <= 0 {
				return content, nil
			}

			lines := strings.Split(content, "\n")
			start := max(args.StartLine, 1)
			end := args.EndLine
			if end <= 0 || end > len(lines) {
				end = len(lines)
			}
			if start > end {
				return nil, tools.NewInvalidArgsError(call.Name, fmt.Sprintf("start_line %d is past end_line %d", start, end), nil)
			}
			return strings.Join(lines[start-1:end], "\n"), nil
		},
	}
}

// WriteFile creates or overwrites a file in the conversation's file state.
func WriteFile() *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Create or overwrite a file in the conversation workspace.",
		Parameters:  tools.BuildSchema(WriteFileArgs{}),
		Source:      Source,
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			st, err := state(call)
			if err != nil {
				return nil, err
			}
			var args WriteFileArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "path is required", nil)
			}
			p := cleanPath(args.Path)
			if st.Files == nil {
				st.Files = make(map[string]string)
			}
			st.Files[p] = args.Content
			return fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), p), nil
		},
	}
}

// EditFile replaces one exact occurrence of text in a file.
func EditFile() *tools.Tool {
	return &tools.Tool{
		Name:        "edit_file",
		Description: "Edit an existing file by replacing specific text. The old_text must match exactly once, including whitespace and indentation.",
		Parameters:  tools.BuildSchema(EditFileArgs{}),
		Source:      Source,
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			st, err := state(call)
			if err != nil {
				return nil, err
			}
			var args EditFileArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			if args.Path == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "path is required", nil)
			}
			if args.OldText == "" {
				return nil, tools.NewInvalidArgsError(call.Name, "old_text is required", nil)
			}
			p := cleanPath(args.Path)
			content, ok := st.Files[p]
			if !ok {
				return nil, fmt.Errorf("file not found: %s", p)
			}

			switch count := strings.Count(content, args.OldText); count {
			case 0:
				preview := content
				if len(preview) > 200 {
					preview = preview[:200] + "..."
				}
				return nil, fmt.Errorf("old_text not found in file. File starts with:\n%s", preview)
			case 1:
			default:
				return nil, fmt.Errorf("old_text matches %d locations in file, provide more context to make the match unique", count)
			}

			st.Files[p] = strings.Replace(content, args.OldText, args.NewText, 1)
			return fmt.Sprintf("Edited %s: replaced %d characters with %d characters", p, len(args.OldText), len(args.NewText)), nil
		},
	}
}

// List lists the entries under a directory of the conversation's file state.
func List() *tools.Tool {
	return &tools.Tool{
		Name:        "ls",
		Description: "List files and directories in the conversation workspace.",
		Parameters:  tools.BuildSchema(ListArgs{}),
		Source:      Source,
		Execute: func(_ context.Context, call *tools.Call) (any, error) {
			st, err := state(call)
			if err != nil {
				return nil, err
			}
			var args ListArgs
			if err := call.Bind(&args); err != nil {
				return nil, err
			}
			dir := cleanPath(args.Path)
			prefix := dir
			if prefix != "/" {
				prefix += "/"
			}

			seen := make(map[string]bool)
			for p := range st.Files {
				rest, ok := strings.CutPrefix(p, prefix)
				if !ok {
					continue
				}
				if head, _, nested := strings.Cut(rest, "/"); nested {
					seen[head+"/"] = true
				} else {
					seen[rest] = true
				}
			}
			if len(seen) == 0 {
				return fmt.Sprintf("%s is empty", dir), nil
			}
			entries := make([]string, 0, len(seen))
			for e := range seen {
				entries = append(entries, e)
			}
			sort.Strings(entries)
			return strings.Join(entries, "\n"), nil
		},
	}
}
