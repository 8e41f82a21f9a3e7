// Package processor runs the external post-processing step on a downloaded file.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"satsync/internal/logger"
)

// FilePlaceholder in Args is replaced with the path of the file being processed.
// When no argument contains it, the path is appended as the last argument.
const FilePlaceholder = "{file}"

// ErrTimeout is returned when the processor exceeds its time limit.
var ErrTimeout = errors.New("processor timed out")

// maxLoggedOutput caps how much processor output goes into a single log entry.
const maxLoggedOutput = 4096

// Command describes an external processor invocation.
type Command struct {
	Program string
	Args    []string
	Timeout time.Duration
	Dir     string
}

// Enabled reports whether a program is configured.
func (c Command) Enabled() bool {
	return strings.TrimSpace(c.Program) != ""
}

// Argv returns the argument list used for file.
func (c Command) Argv(file string) []string {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false
	for _, a := range c.Args {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, file)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, file)
	}
	return args
}

func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Run processes file synchronously. A disabled command is a no-op.
func (c Command) Run(ctx context.Context, file string) error {
	if !c.Enabled() {
		return nil
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.Program, c.Argv(file)...)
	cmd.Dir = c.Dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Children of a killed shell may keep the pipes open.
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	fields := map[string]interface{}{
		"program":     c.Program,
		"file":        file,
		"duration_ms": elapsed.Milliseconds(),
	}
	if out.Len() > 0 {
		fields["output"] = truncate(out.String(), maxLoggedOutput)
	}
	logger.Debug("Processor finished", fields)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrTimeout, c.Timeout, file)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("processor exited with code %d: %w", exitErr.ExitCode(), err)
	}
	return fmt.Errorf("failed to run processor: %w", err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
