package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"webbot/internal/logging"
	"webbot/internal/selfmod"
	"webbot/internal/tools"
)

// DefaultMaxReadBytes caps what file_read returns.
const DefaultMaxReadBytes = 50000

// Options carries what the core tools need.
type Options struct {
	// Root resolves relative paths. Empty uses the working directory.
	Root string
	// SoulPath is the SOUL.md document soul_update overwrites.
	SoulPath string
	// Guard enforces protected paths and audits self_modify.
	Guard        *selfmod.Guard
	MaxReadBytes int
}

func (o Options) resolve(path string) string {
	if filepath.IsAbs(path) || o.Root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(o.Root, path)
}

// ReadFileTool returns a tool for reading file contents.
func ReadFileTool(opts Options) *tools.Tool {
	max := opts.MaxReadBytes
	if max <= 0 {
		max = DefaultMaxReadBytes
	}
	return &tools.Tool{
		Name:        "file_read",
		Description: "Read the contents of a file",
		Category:    tools.CategorySystem,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			return executeReadFile(opts, max, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to read",
				},
				"start_line": {
					Type:        "integer",
					Description: "Starting line number (1-indexed, optional)",
				},
				"end_line": {
					Type:        "integer",
					Description: "Ending line number (inclusive, optional)",
				},
			},
		},
	}
}

func executeReadFile(opts Options, max int, args map[string]any) (tools.Result, error) {
	path, err := tools.NonEmptyString(args, "path")
	if err != nil {
		return nil, err
	}
	full := opts.resolve(path)

	logging.ToolsDebug("file_read: path=%s", full)

	content, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, tools.NewError(tools.CodeExecutionFailed, "file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	result := string(content)

	_, hasStart := args["start_line"]
	_, hasEnd := args["end_line"]
	if hasStart || hasEnd {
		lines := strings.Split(result, "\n")
		startLine, endLine := 1, len(lines)
		if hasStart {
			n, err := tools.Number(args, "start_line")
			if err != nil {
				return nil, err
			}
			startLine = int(n)
		}
		if hasEnd {
			n, err := tools.Number(args, "end_line")
			if err != nil {
				return nil, err
			}
			endLine = int(n)
		}

		// Convert to 0-indexed
		startLine--
		if startLine < 0 {
			startLine = 0
		}
		if endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine >= endLine {
			result = ""
		} else {
			result = strings.Join(lines[startLine:endLine], "\n")
		}
	}

	result, truncated := tools.Truncate(result, max)

	logging.Tools("file_read completed: %s (%d bytes)", path, len(result))
	return tools.Result{"path": path, "content": result, "truncated": truncated}, nil
}

// WriteFileTool returns a tool for writing content to a file.
func WriteFileTool(opts Options) *tools.Tool {
	return &tools.Tool{
		Name:        "file_write",
		Description: "Write content to a file, creating it and its parent directories if needed",
		Category:    tools.CategorySystem,
		Execute: func(ctx context.Context, env tools.Env, args map[string]any) (tools.Result, error) {
			return executeWriteFile(opts, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "The file path to write",
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
			},
		},
	}
}

func executeWriteFile(opts Options, args map[string]any) (tools.Result, error) {
	path, err := tools.NonEmptyString(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := tools.String(args, "content")
	if err != nil {
		return nil, err
	}
	if opts.Guard != nil && opts.Guard.IsProtected(path) {
		return nil, tools.PolicyViolation("%s is protected", path)
	}
	full := opts.resolve(path)

	logging.ToolsDebug("file_write: path=%s, size=%d", full, len(content))

	if err := writeFile(full, content, 0o644); err != nil {
		return nil, err
	}

	logging.Tools("file_write completed: %s (%d bytes)", path, len(content))
	return tools.Result{"path": path, "bytes_written": len(content)}, nil
}

func writeFile(path, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
