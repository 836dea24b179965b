package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestLocalValidatePathRejectsEscape(t *testing.T) {
	sb := New(t.TempDir())
	if _, err := sb.ValidatePath("../outside.txt"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestLocalValidatePathResolvesWithinRoot(t *testing.T) {
	sb := New(t.TempDir())
	resolved, err := sb.ValidatePath("notes/a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected a resolved absolute path")
	}
}

func TestLocalExecReturnsOutputAndExitCode(t *testing.T) {
	sb := New(t.TempDir())
	result, err := sb.Exec(context.Background(), "echo hi", "", 0)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if result.Stdout != "hi\n" {
		t.Fatalf("expected stdout %q, got %q", "hi\n", result.Stdout)
	}
}

func TestLocalExecCapturesNonZeroExit(t *testing.T) {
	sb := New(t.TempDir())
	result, err := sb.Exec(context.Background(), "exit 3", "", 0)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", result.ExitCode)
	}
}

func TestLocalExecRespectsTimeout(t *testing.T) {
	sb := New(t.TempDir())
	result, err := sb.Exec(context.Background(), "sleep 5", "", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if result.ExitCode == 0 {
		t.Fatal("expected a non-zero exit code from a killed command")
	}
}
