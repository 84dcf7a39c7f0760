package framework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

const outputDrainTimeout = time.Second * 2

// CommandSpec describes an external command to run.
type CommandSpec struct {
	Path string
	Args []string
	Dir  string
	// Env is added to the current process environment. Later entries win.
	Env []string
	// Unset names variables to remove from the inherited environment.
	Unset []string
}

// CommandResult is everything we can observe about a finished command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// CommandLine returns the command as a shell-quoted string, suitable for pasting into a terminal.
func (s CommandSpec) CommandLine() string {
	var b commandBuilder
	b.add(s.Path)
	b.add(s.Args...)
	return b.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// RunCommand runs a command to completion and captures its output. A non-zero exit status is not
// an error; it is reported in CommandResult.ExitCode. An error is returned only if the command
// could not be started or its output could not be read.
//
// If ctx has a deadline and it expires, the process is killed and TimedOut is set.
func RunCommand(ctx context.Context, spec CommandSpec, logger Logger) (CommandResult, error) {
	if logger == nil {
		logger = NullLogger()
	}
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = commandEnv(os.Environ(), spec.Env, spec.Unset)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Lifecycle scripts can leave grandchildren holding our pipes after the process itself is
	// killed, so don't wait for EOF forever.
	cmd.WaitDelay = outputDrainTimeout

	if spec.Dir != "" {
		logger.Printf("$ cd %s && %s", shellescape.Quote(spec.Dir), spec.CommandLine())
	} else {
		logger.Printf("$ %s", spec.CommandLine())
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("could not start %s: %w", spec.Path, err)
	}

	waitErr := cmd.Wait()

	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if ctx.Err() != nil {
		result.TimedOut = true
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(waitErr, exec.ErrWaitDelay):
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return result, fmt.Errorf("error waiting for %s: %w", spec.Path, waitErr)
	}

	logger.Printf("exit code %d after %s", result.ExitCode, result.Duration.Round(time.Millisecond))
	logOutput(logger, "stdout", result.Stdout)
	logOutput(logger, "stderr", result.Stderr)
	return result, nil
}

func commandEnv(base, extra, unset []string) []string {
	ret := make([]string, 0, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, kv := range group {
			name, _, _ := strings.Cut(kv, "=")
			if !slices.Contains(unset, name) {
				ret = append(ret, kv)
			}
		}
	}
	return ret
}

func logOutput(logger Logger, name, output string) {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return
	}
	for _, line := range strings.Split(output, "\n") {
		logger.Printf("  %s| %s", name, line)
	}
}
