package shell

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("dispatcher tests use sh")
	}
}

func TestDispatcher_Run(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()

	var testCases = []struct {
		description string
		command     string
		expect      Result
	}{
		{description: "stdout", command: "echo hello", expect: Result{Output: "hello"}},
		{description: "stdout and stderr", command: "echo out; echo err 1>&2", expect: Result{Output: "out\nerr"}},
		{description: "stderr only", command: "echo err 1>&2", expect: Result{Output: "err"}},
		{description: "trimmed", command: "printf '\\n  spaced  \\n\\n'", expect: Result{Output: "spaced"}},
		{description: "partial output on failure", command: "echo partial; exit 3", expect: Result{Output: "partial", ExitCode: 3}},
		{description: "error text without output", command: "exit 2", expect: Result{Output: "exit status 2", ExitCode: 2}},
		{description: "pipes are native", command: "printf 'b\\na\\n' | sort | head -n 1", expect: Result{Output: "a"}},
	}

	dispatcher := NewDispatcher(cwd)
	for _, testCase := range testCases {
		actual := dispatcher.Run(context.Background(), testCase.command, cwd)
		testCase.expect.Cwd = cwd
		assert.EqualValues(t, testCase.expect, actual, testCase.description)
	}
}

func TestDispatcher_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(t.TempDir())

	actual := dispatcher.Run(context.Background(), "pwd -P", cwd)
	expected, err := filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, expected, actual.Output)
	assert.Equal(t, 0, actual.ExitCode)
}

func TestDispatcher_CompoundCdDoesNotMoveSession(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)

	actual := dispatcher.Run(context.Background(), "cd / && pwd", cwd)
	assert.Equal(t, "/", actual.Output)
	assert.Equal(t, cwd, actual.Cwd)
}

func TestDispatcher_Environment(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	cwd := t.TempDir()
	dispatcher := NewDispatcher(root)
	dispatcher.Environ = func() []string {
		return []string{"HOME=/elsewhere", "TERM=dumb", "KEEP=yes", "PATH=/usr/bin:/bin"}
	}

	actual := dispatcher.Run(context.Background(), `echo "$HOME|$PWD|$TERM|$FORCE_COLOR|$KEEP"`, cwd)
	assert.Equal(t, strings.Join([]string{root, cwd, DefaultTerm, "1", "yes"}, "|"), actual.Output)
}

func TestDispatcher_Timeout(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)
	dispatcher.Timeout = 100 * time.Millisecond

	started := time.Now()
	actual := dispatcher.Run(context.Background(), "sleep 5", cwd)
	assert.Less(t, time.Since(started), 4*time.Second)
	assert.Equal(t, 1, actual.ExitCode)
	assert.Equal(t, "command timed out after 100ms", actual.Output)
}

func TestDispatcher_TimeoutKeepsPartialOutput(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)
	dispatcher.Timeout = 200 * time.Millisecond

	actual := dispatcher.Run(context.Background(), "echo started; sleep 5", cwd)
	assert.Equal(t, 1, actual.ExitCode)
	assert.Equal(t, "started", actual.Output)
}

func TestDispatcher_OutputLimit(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)
	dispatcher.MaxOutput = 10

	actual := dispatcher.Run(context.Background(), "printf '123456789012345'", cwd)
	assert.Equal(t, 1, actual.ExitCode)
	assert.Equal(t, "1234567890", actual.Output)
}

func TestDispatcher_OutputLimitIsShared(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)
	dispatcher.MaxOutput = 8

	actual := dispatcher.Run(context.Background(), "printf 'abcdef'; printf 'ghijkl' 1>&2; sleep 1", cwd)
	assert.Equal(t, 1, actual.ExitCode)
	assert.Equal(t, "abcdef\ngh", actual.Output)
}

func TestDispatcher_BackgroundJob(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)

	var testCases = []struct {
		description string
		command     string
		expect      Result
	}{
		{description: "zero exit with child holding stdout", command: "echo started; sleep 5 &", expect: Result{Output: "started"}},
		{description: "non-zero exit with child holding stdout", command: "echo started; sleep 5 & exit 3", expect: Result{Output: "started", ExitCode: 3}},
	}

	for _, testCase := range testCases {
		started := time.Now()
		actual := dispatcher.Run(context.Background(), testCase.command, cwd)
		testCase.expect.Cwd = cwd
		assert.EqualValues(t, testCase.expect, actual, testCase.description)
		assert.Less(t, time.Since(started), 4*time.Second, testCase.description)
	}
}

func TestDispatcher_SpawnFailure(t *testing.T) {
	skipOnWindows(t)
	cwd := t.TempDir()
	dispatcher := NewDispatcher(cwd)
	dispatcher.Shell = filepath.Join(cwd, "no-such-shell")

	actual := dispatcher.Run(context.Background(), "echo hi", cwd)
	assert.Equal(t, 1, actual.ExitCode)
	assert.Contains(t, actual.Output, "no-such-shell")
	assert.Equal(t, cwd, actual.Cwd)
}
