package deploy

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// Command is an external process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external commands.
type Runner interface {
	// Run executes cmd to completion and returns its combined output.
	Run(ctx context.Context, cmd Command) ([]byte, error)
	// Stream executes cmd and calls onLine for each stdout line until it exits or ctx ends.
	Stream(ctx context.Context, cmd Command, onLine func(string)) error
}

var _ Runner = ExecRunner{}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(err, "%s failed: %s", c, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (ExecRunner) Stream(ctx context.Context, c Command, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "failed to pipe %s", c)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", c)
	}
	scanLines(stdout, onLine)
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return errors.Wrapf(err, "%s exited", c)
	}
	return nil
}

func scanLines(r io.Reader, onLine func(string)) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		onLine(s.Text())
	}
}
