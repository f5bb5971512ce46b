// Package shell runs commands for a session: the cd and pwd built-ins are
// resolved in-process, everything else goes to the OS command interpreter.
package shell

import "strings"

// Result is the normalized outcome of any command, successful or not.
type Result struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Cwd      string `json:"cwd"`
}

// Invocation is a tokenized command string.
type Invocation struct {
	Verb string
	Args []string
	// Compound is set when the command uses shell operators and therefore
	// has to run in a real shell.
	Compound bool
}

// operators mark commands that cannot be handled as a single built-in.
var operators = []string{";", "&", "|", "<", ">", "`", "$("}

// Parse splits command on whitespace. It does not interpret quoting beyond
// what Builtin needs.
func Parse(command string) Invocation {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Invocation{}
	}
	inv := Invocation{Verb: fields[0], Args: fields[1:]}
	for _, op := range operators {
		if strings.Contains(command, op) {
			inv.Compound = true
			break
		}
	}
	return inv
}

// Builtin returns the built-in verb ("cd" or "pwd") handling inv, or "".
func (inv Invocation) Builtin() string {
	if inv.Compound {
		return ""
	}
	switch inv.Verb {
	case "cd", "pwd":
		return inv.Verb
	}
	return ""
}

// Target returns the cd argument with one level of matching quotes removed.
func (inv Invocation) Target() string {
	target := strings.Join(inv.Args, " ")
	if len(target) >= 2 {
		if q := target[0]; (q == '"' || q == '\'') && target[len(target)-1] == q {
			target = target[1 : len(target)-1]
		}
	}
	return target
}
