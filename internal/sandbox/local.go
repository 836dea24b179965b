// Package sandbox provides a local filesystem Sandbox implementation:
// path resolution confined to a workspace root, and command execution via
// /bin/sh with an output cap and an optional timeout.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentforge/agentcore/internal/agentcore"
)

// maxOutputBytes caps captured stdout/stderr per Exec call.
const maxOutputBytes = 64_000

// Local implements agentcore.Sandbox against the host filesystem, confining
// every path to Root.
type Local struct {
	Root string
}

// New returns a Local sandbox rooted at root. An empty root resolves to the
// process's working directory.
func New(root string) *Local {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	return &Local{Root: root}
}

// ValidatePath resolves relative against Root and rejects any path that
// would escape it.
func (l *Local) ValidatePath(relative string) (string, error) {
	clean := strings.TrimSpace(relative)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	rootAbs, err := filepath.Abs(l.Root)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}
	target := clean
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root")
	}
	return targetAbs, nil
}

// Exec runs command via /bin/sh -c, defaulting cwd to Root, cancelled if it
// outlives timeout (0 disables the deadline).
func (l *Local) Exec(ctx context.Context, command string, cwd string, timeout time.Duration) (agentcore.ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return agentcore.ExecResult{}, fmt.Errorf("command is required")
	}

	dir := l.Root
	if strings.TrimSpace(cwd) != "" {
		resolved, err := l.ValidatePath(cwd)
		if err != nil {
			return agentcore.ExecResult{}, err
		}
		dir = resolved
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: maxOutputBytes}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: maxOutputBytes}

	err := cmd.Run()
	return agentcore.ExecResult{
		ExitCode: exitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedWriter caps how much of a command's output is retained.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
