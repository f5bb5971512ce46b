package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	var testCases = []struct {
		description string
		command     string
		verb        string
		args        []string
		compound    bool
		builtin     string
	}{
		{description: "empty", command: "  "},
		{description: "pwd", command: "pwd", verb: "pwd", args: []string{}, builtin: "pwd"},
		{description: "cd with target", command: " cd  sub dir ", verb: "cd", args: []string{"sub", "dir"}, builtin: "cd"},
		{description: "cd chained", command: "cd sub && ls", verb: "cd", args: []string{"sub", "&&", "ls"}, compound: true},
		{description: "pwd piped", command: "pwd | cat", verb: "pwd", args: []string{"|", "cat"}, compound: true},
		{description: "redirect", command: "ls > out.txt", verb: "ls", args: []string{">", "out.txt"}, compound: true},
		{description: "substitution", command: "cd $(mktemp -d)", verb: "cd", args: []string{"$(mktemp", "-d)"}, compound: true},
		{description: "regular command", command: "ls -la", verb: "ls", args: []string{"-la"}},
		{description: "case sensitive builtin", command: "CD /tmp", verb: "CD", args: []string{"/tmp"}},
	}

	for _, testCase := range testCases {
		inv := Parse(testCase.command)
		assert.EqualValues(t, testCase.verb, inv.Verb, testCase.description)
		if testCase.args != nil {
			assert.EqualValues(t, testCase.args, inv.Args, testCase.description)
		}
		assert.EqualValues(t, testCase.compound, inv.Compound, testCase.description)
		assert.EqualValues(t, testCase.builtin, inv.Builtin(), testCase.description)
	}
}

func TestInvocation_Target(t *testing.T) {
	assert.Equal(t, "", Parse("cd").Target())
	assert.Equal(t, "sub", Parse("cd sub").Target())
	assert.Equal(t, "my dir", Parse("cd 'my dir'").Target())
	assert.Equal(t, "my dir", Parse(`cd "my dir"`).Target())
	assert.Equal(t, `"half`, Parse(`cd "half`).Target())
}
