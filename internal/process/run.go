package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes a command to completion and returns its combined output.
type Runner interface {
	Run(ctx context.Context, spec Spec) ([]byte, error)
}

// RunError reports a command that could not start or exited non-zero.
type RunError struct {
	Spec     Spec
	ExitCode int // -1 when the command never ran
	Output   []byte
	Err      error
}

func (e *RunError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s: %q exited with status %d", e.Spec.Name, e.Spec.String(), e.ExitCode)
	}
	return fmt.Sprintf("%s: %q: %v", e.Spec.Name, e.Spec.String(), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run blocks until the command exits or ctx is cancelled, in which case the
// process is killed.
func (ExecRunner) Run(ctx context.Context, spec Spec) ([]byte, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Start(); err != nil {
		return nil, &RunError{Spec: spec, ExitCode: -1, Err: err}
	}
	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return buf.Bytes(), &RunError{Spec: spec, ExitCode: -1, Output: buf.Bytes(), Err: ctx.Err()}
	}
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return buf.Bytes(), &RunError{Spec: spec, ExitCode: code, Output: buf.Bytes(), Err: err}
	}
	return buf.Bytes(), nil
}
