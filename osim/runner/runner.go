// Package runner invokes the external simulation tools (rra, cmc, analyze)
// with the engine's setup-file convention: <executable> -S <setup>.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitError reports a tool run that finished with a non-zero status.
type ExitError struct {
	Executable string
	Setup      string
	Code       int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s -S %s exited with status %d", e.Executable, e.Setup, e.Code)
}

// Tool is one external simulation executable.
type Tool struct {
	Executable string    // path or name on PATH (e.g. "rra")
	Dir        string    // working directory; empty means the caller's
	Stdout     io.Writer // nil discards the tool's console output
	Stderr     io.Writer // nil discards the tool's error output
}

// Command builds the argument vector for a run against setupPath.
func (t *Tool) Command(setupPath string) []string {
	return []string{t.Executable, "-S", setupPath}
}

// Run executes the tool and blocks until it exits or ctx is done.
func (t *Tool) Run(ctx context.Context, setupPath string) error {
	if t.Executable == "" {
		return fmt.Errorf("no executable configured")
	}
	argv := t.Command(setupPath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.Dir
	cmd.Stdout = t.Stdout
	cmd.Stderr = t.Stderr

	logrus.Debugf("running %v (dir=%q)", argv, t.Dir)
	start := time.Now()
	err := cmd.Run()
	logrus.Debugf("%s finished in %s", t.Executable, time.Since(start).Round(time.Millisecond))

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s cancelled: %w", t.Executable, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Executable: t.Executable, Setup: setupPath, Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("starting %s: %w", t.Executable, err)
}
