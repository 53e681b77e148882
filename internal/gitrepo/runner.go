// Package gitrepo manages the superproject working tree: clean checkouts,
// submodule and gitlink reads, gitlink commits and pushes.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/user/submodsync/pkg/logger"
)

var (
	// ErrTimeout is returned when a git command exceeds its time limit.
	ErrTimeout = errors.New("git command timed out")
	// ErrPushRejected is returned when the remote refuses a push, usually
	// because another pusher moved the branch first.
	ErrPushRejected = errors.New("push rejected")
	// ErrNoChanges is returned when asked to commit an empty update set.
	ErrNoChanges = errors.New("no gitlink changes to commit")
	// ErrBadSubmodule reports malformed submodule configuration.
	ErrBadSubmodule = errors.New("bad submodule configuration")
)

// waitDelay bounds how long a killed command may keep its pipes open.
const waitDelay = time.Second

// ExitError is a git command that ran and exited non-zero.
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Runner runs git commands in a directory.
type Runner struct {
	// Dir is the directory the commands are run in.
	Dir string

	// Timeout limits each command. Zero means no limit.
	Timeout time.Duration
}

// Run runs a git command and returns its stdout. Omit the 'git' part of
// the command. stdin may be empty.
func (r Runner) Run(ctx context.Context, stdin string, args ...string) (string, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return "", fmt.Errorf("no 'git' program on path: %w", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	logger.Debug().Str("dir", r.Dir).Strs("args", args).Msg("Running git")

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), fmt.Errorf("%w: git %s in %s", ErrTimeout, strings.Join(args, " "), r.Dir)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &ExitError{Args: args, Code: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}
