package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	minerrors "github.com/minpm/minpm/pkg/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunSuccess(t *testing.T) {
	requireShell(t)

	var stdout bytes.Buffer
	r := &Exec{Stdout: &stdout, Stdin: strings.NewReader("")}
	if err := r.Run(context.Background(), "sh", "-c", "echo hello"); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "hello" {
		t.Errorf("stdout = %q, want hello", got)
	}
}

func TestExecRunExitCode(t *testing.T) {
	requireShell(t)

	r := &Exec{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	err := r.Run(context.Background(), "sh", "-c", "exit 3")

	var cp *minerrors.ChildProcessError
	if !errors.As(err, &cp) {
		t.Fatalf("error = %v, want ChildProcessError", err)
	}
	if cp.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cp.ExitCode)
	}
	if minerrors.ExitCode(err) != 3 {
		t.Errorf("errors.ExitCode() = %d, want 3", minerrors.ExitCode(err))
	}
}

func TestExecRunNotFound(t *testing.T) {
	err := (&Exec{}).Run(context.Background(), "minpm-definitely-not-a-command")

	var cp *minerrors.ChildProcessError
	if !errors.As(err, &cp) {
		t.Fatalf("error = %v, want ChildProcessError", err)
	}
	if cp.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", cp.ExitCode)
	}
	if !minerrors.Is(err, minerrors.ErrCodeChildProcess) {
		t.Error("expected CHILD_PROCESS_ERROR code")
	}
}

func TestExecRunDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	var stdout bytes.Buffer
	r := &Exec{Stdout: &stdout, Dir: dir}
	if err := r.Run(context.Background(), "sh", "-c", "pwd"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(strings.TrimSpace(stdout.String()), strings.TrimPrefix(dir, "/private")) {
		t.Errorf("pwd = %q, want %q", stdout.String(), dir)
	}
}
