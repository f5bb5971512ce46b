package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 10 * 1024 * 1024 // 10 MiB, stdout and stderr combined
	DefaultTerm      = "xterm-256color"

	// waitDelay bounds how long Wait blocks on pipes held open by orphaned
	// grandchildren after the shell itself was killed.
	waitDelay = 2 * time.Second
)

var errOutputLimitExceeded = errors.New("output limit exceeded")

// Dispatcher runs commands through the OS command interpreter.
type Dispatcher struct {
	// Root is exported to children as HOME.
	Root      string
	Timeout   time.Duration
	MaxOutput int
	// Shell overrides the interpreter; it is invoked as `<Shell> -c <cmd>`.
	Shell string
	Term  string
	// Environ supplies the base environment; os.Environ when nil.
	Environ func() []string
}

// NewDispatcher creates a dispatcher with default limits.
func NewDispatcher(root string) *Dispatcher {
	return &Dispatcher{
		Root:      root,
		Timeout:   DefaultTimeout,
		MaxOutput: DefaultMaxOutput,
		Term:      DefaultTerm,
	}
}

// Run executes command in cwd. It always returns a Result; failures of the
// command itself (non-zero exit, timeout, output overrun, spawn failure)
// are folded into Output and ExitCode. The returned Cwd is always cwd.
func (d *Dispatcher) Run(ctx context.Context, command, cwd string) Result {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := d.command(ctx, command)
	cmd.Dir = cwd
	cmd.Env = d.environment(cwd)
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd)

	limit := d.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	budget := &outputBudget{remaining: limit, onExceed: cancel}
	stdout := &budgetWriter{budget: budget}
	stderr := &budgetWriter{budget: budget}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	// A background child holding the pipes open past WaitDelay does not
	// turn a zero exit into a failure.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		err = nil
	}

	if err == nil && !budget.exceeded() {
		return Result{Output: combine(stdout.String(), stderr.String()), Cwd: cwd}
	}

	switch {
	case budget.exceeded():
		err = fmt.Errorf("%w: more than %d bytes", errOutputLimitExceeded, limit)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("command timed out after %s", timeout)
	}

	output := combine(stdout.String(), stderr.String())
	if output == "" {
		output = err.Error()
	}
	return Result{Output: output, ExitCode: exitCode(err), Cwd: cwd}
}

func (d *Dispatcher) command(ctx context.Context, command string) *exec.Cmd {
	if d.Shell != "" {
		return exec.CommandContext(ctx, d.Shell, "-c", command)
	}
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}

// environment returns the base environment with HOME, PWD, TERM and
// FORCE_COLOR replaced.
func (d *Dispatcher) environment(cwd string) []string {
	base := os.Environ
	if d.Environ != nil {
		base = d.Environ
	}
	term := d.Term
	if term == "" {
		term = DefaultTerm
	}
	overrides := map[string]string{
		"HOME":        d.Root,
		"PWD":         cwd,
		"TERM":        term,
		"FORCE_COLOR": "1",
	}

	env := make([]string, 0, len(base())+len(overrides))
	for _, kv := range base() {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for _, key := range []string{"HOME", "PWD", "TERM", "FORCE_COLOR"} {
		env = append(env, key+"="+overrides[key])
	}
	return env
}

// combine joins stdout and a non-empty stderr with a newline and trims the
// result.
func combine(stdout, stderr string) string {
	if stderr == "" {
		return strings.TrimSpace(stdout)
	}
	return strings.TrimSpace(stdout + "\n" + stderr)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}

// outputBudget is a byte allowance shared by stdout and stderr.
type outputBudget struct {
	mu        sync.Mutex
	remaining int
	over      bool
	onExceed  func()
}

func (b *outputBudget) take(n int) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= b.remaining {
		b.remaining -= n
		return n, true
	}
	granted := b.remaining
	b.remaining = 0
	if !b.over {
		b.over = true
		if b.onExceed != nil {
			b.onExceed()
		}
	}
	return granted, false
}

func (b *outputBudget) exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.over
}

type budgetWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	budget *outputBudget
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	n, ok := w.budget.take(len(p))
	w.mu.Lock()
	w.buf.Write(p[:n])
	w.mu.Unlock()
	if !ok {
		return n, errOutputLimitExceeded
	}
	return n, nil
}

func (w *budgetWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
