package agentcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agentforge/agentcore/internal/tools"
)

const defaultMaxReadBytes = 200_000

// RegisterSandboxTools adds read_file, write_file, and exec to registry,
// each delegating to sb. Call this once per Agent that should expose
// filesystem/command capabilities to its Provider.
func RegisterSandboxTools(registry *tools.Registry, sb Sandbox) error {
	defs := []tools.Definition{readFileTool(sb), writeFileTool(sb), execTool(sb)}
	for _, d := range defs {
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
	}
	return nil
}

func readFileTool(sb Sandbox) tools.Definition {
	return tools.Definition{
		Name:        "read_file",
		Description: "Read a file from the sandbox, with an optional offset and byte limit.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "description": "Path relative to the sandbox root."},
				"offset":    map[string]any{"type": "integer", "description": "Byte offset to start reading from.", "minimum": 0},
				"max_bytes": map[string]any{"type": "integer", "description": "Maximum bytes to read.", "minimum": 0},
			},
			"required": []string{"path"},
		},
		Source: tools.SourceNative,
		Handler: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in struct {
				Path     string `json:"path"`
				Offset   int64  `json:"offset"`
				MaxBytes int    `json:"max_bytes"`
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return tools.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			if strings.TrimSpace(in.Path) == "" {
				return tools.ErrorResult("path is required"), nil
			}
			resolved, err := sb.ValidatePath(in.Path)
			if err != nil {
				return tools.ErrorResult(err.Error()), nil
			}
			f, err := os.Open(resolved)
			if err != nil {
				return tools.ErrorResult(fmt.Sprintf("open file: %v", err)), nil
			}
			defer f.Close()
			if in.Offset > 0 {
				if _, err := f.Seek(in.Offset, 0); err != nil {
					return tools.ErrorResult(fmt.Sprintf("seek file: %v", err)), nil
				}
			}
			limit := defaultMaxReadBytes
			if in.MaxBytes > 0 && in.MaxBytes < limit {
				limit = in.MaxBytes
			}
			buf := make([]byte, limit)
			n, err := f.Read(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				return tools.ErrorResult(fmt.Sprintf("read file: %v", err)), nil
			}
			return tools.StringResult(string(buf[:n])), nil
		},
	}
}

func writeFileTool(sb Sandbox) tools.Definition {
	return tools.Definition{
		Name:        "write_file",
		Description: "Write content to a file in the sandbox, overwriting by default.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path relative to the sandbox root."},
				"content": map[string]any{"type": "string", "description": "File contents to write."},
				"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite."},
			},
			"required": []string{"path", "content"},
		},
		Source: tools.SourceNative,
		Handler: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
				Append  bool   `json:"append"`
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return tools.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			if strings.TrimSpace(in.Path) == "" {
				return tools.ErrorResult("path is required"), nil
			}
			resolved, err := sb.ValidatePath(in.Path)
			if err != nil {
				return tools.ErrorResult(err.Error()), nil
			}
			flags := os.O_CREATE | os.O_WRONLY
			if in.Append {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			f, err := os.OpenFile(resolved, flags, 0o644)
			if err != nil {
				return tools.ErrorResult(fmt.Sprintf("open file: %v", err)), nil
			}
			defer f.Close()
			n, err := f.WriteString(in.Content)
			if err != nil {
				return tools.ErrorResult(fmt.Sprintf("write file: %v", err)), nil
			}
			return tools.StringResult(fmt.Sprintf("wrote %d bytes to %s", n, in.Path)), nil
		},
	}
}

func execTool(sb Sandbox) tools.Definition {
	return tools.Definition{
		Name:        "exec",
		Description: "Run a shell command in the sandbox and return its stdout, stderr, and exit code.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":         map[string]any{"type": "string", "description": "Shell command to run via /bin/sh -c."},
				"cwd":             map[string]any{"type": "string", "description": "Working directory, relative to the sandbox root."},
				"timeout_seconds": map[string]any{"type": "integer", "description": "Kill the command after this many seconds.", "minimum": 0},
			},
			"required": []string{"command"},
		},
		Source: tools.SourceNative,
		Handler: func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
			var in struct {
				Command        string `json:"command"`
				Cwd            string `json:"cwd"`
				TimeoutSeconds int    `json:"timeout_seconds"`
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return tools.ErrorResult(fmt.Sprintf("invalid input: %v", err)), nil
			}
			if strings.TrimSpace(in.Command) == "" {
				return tools.ErrorResult("command is required"), nil
			}
			timeout := time.Duration(in.TimeoutSeconds) * time.Second
			result, err := sb.Exec(ctx, in.Command, in.Cwd, timeout)
			if err != nil {
				return tools.ErrorResult(err.Error()), nil
			}
			payload, _ := json.MarshalIndent(result, "", "  ")
			out := tools.StringResult(string(payload))
			out.IsError = result.ExitCode != 0
			return out, nil
		},
	}
}
