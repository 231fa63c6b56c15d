// Package runner spawns external processes with inherited standard streams.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"

	minerrors "github.com/minpm/minpm/pkg/errors"
)

// Runner starts a command and waits for it.
//
// A command that cannot be started or exits nonzero yields a
// *errors.ChildProcessError carrying the exit code.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Exec runs commands on the host. Nil streams default to the process's
// own stdin, stdout and stderr.
type Exec struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
	Env    []string // nil inherits the environment
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if e.Stdin != nil {
		cmd.Stdin = e.Stdin
	}
	if e.Stdout != nil {
		cmd.Stdout = e.Stdout
	}
	if e.Stderr != nil {
		cmd.Stderr = e.Stderr
	}
	cmd.Dir = e.Dir
	cmd.Env = e.Env

	if err := cmd.Start(); err != nil {
		return minerrors.NewChildProcessError(name, args, -1, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// killed by a signal
				code = 1
			}
			return minerrors.NewChildProcessError(name, args, code, err)
		}
		return minerrors.NewChildProcessError(name, args, 1, err)
	}
	return nil
}

