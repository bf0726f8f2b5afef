// Package procrunner executes external tools synchronously and reports the
// outcome as data. Failures surface through the exit code field, never as Go
// errors, so every caller branches on the code explicitly.
package procrunner

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Command describes a single tool invocation.
type Command struct {
	Path    string
	Args    []string
	Stdin   string
	Timeout time.Duration
}

// Result is the captured outcome of one invocation. ExitCode is -1 when the
// process could not be started or was killed (timeout included).
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Runtime  time.Duration
}

// Line returns the command as it would be typed in a shell, for logging.
func (c Command) Line() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner is the single seam between the workflow and the outside world.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func New() ExecRunner {
	return ExecRunner{}
}

func (ExecRunner) Run(ctx context.Context, proto Command) Result {
	if proto.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, proto.Path, proto.Args...)

	var stdin io.WriteCloser
	if proto.Stdin != "" {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return Result{ExitCode: -1, Stderr: err.Error()}
		}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1, Stderr: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1, Stderr: err.Error()}
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{
			ExitCode: -1,
			Stderr:   err.Error(),
			Runtime:  time.Since(started),
		}
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	if stdin != nil {
		g.Go(func() error {
			_, err := io.WriteString(stdin, proto.Stdin)
			if closeErr := stdin.Close(); err == nil {
				err = closeErr
			}
			return err
		})
	}
	_ = g.Wait()
	waitErr := cmd.Wait()
	runtime := time.Since(started)

	exitCode := 0
	if waitErr != nil {
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return Result{
		ExitCode: exitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Runtime:  runtime,
	}
}
