// Package policy decides whether a command string may reach the operating
// system. Matching is a substring heuristic over the raw command, not a
// sandbox.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// DefaultDenied lists verbs that control processes and services, format or
// mount filesystems, manage users and permissions, schedule jobs or escalate
// privileges.
var DefaultDenied = []string{
	"shutdown", "reboot", "halt", "poweroff", "init", "systemctl", "service",
	"kill", "killall", "pkill",
	"mount", "umount", "mkfs", "fdisk", "format",
	"useradd", "userdel", "usermod", "groupadd", "groupdel", "passwd",
	"chown", "chmod", "chgrp", "sudo", "su",
	"crontab", "at",
}

// DefaultAllowed is the advisory list published to clients. It does not gate
// execution unless enforcement is switched on.
var DefaultAllowed = []string{
	"ls", "cd", "pwd", "cat", "echo", "mkdir", "touch", "rm", "cp", "mv",
	"grep", "find", "head", "tail", "wc", "sort", "uniq", "diff", "tree",
	"git", "npm", "npx", "node", "python", "python3", "pip", "go", "make",
	"curl", "wget", "whoami", "date", "env", "which", "clear", "du", "df",
}

// dangerousRmPatterns are rejected anywhere in an rm invocation.
var dangerousRmPatterns = []string{"-rf /", "-rf ~", "--no-preserve-root"}

// chainOperators precede a verb that is invoked mid-command.
var chainOperators = []string{"; ", "&& ", "| "}

// builtins are always permitted by the strict allow-list mode.
var builtins = map[string]bool{"cd": true, "pwd": true}

// Decision is the outcome of evaluating a command.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Config is the serialisable part of an Engine.
type Config struct {
	Denied           []string `json:"denied,omitempty" yaml:"denied,omitempty"`
	Allowed          []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	EnforceAllowList bool     `json:"enforceAllowList,omitempty" yaml:"enforceAllowList,omitempty"`
}

// Engine evaluates commands against a deny-list and, optionally, an
// allow-list.
type Engine struct {
	denied           []string
	allowed          []string
	allowedSet       map[string]bool
	enforceAllowList bool
}

// New creates an engine. Denied entries extend DefaultDenied; a non-empty
// Allowed replaces DefaultAllowed.
func New(cfg Config) *Engine {
	denied := append([]string(nil), DefaultDenied...)
	for _, d := range cfg.Denied {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" && !contains(denied, d) {
			denied = append(denied, d)
		}
	}

	allowed := cfg.Allowed
	if len(allowed) == 0 {
		allowed = DefaultAllowed
	}
	set := make(map[string]bool, len(allowed))
	list := make([]string, 0, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || set[a] {
			continue
		}
		set[a] = true
		list = append(list, a)
	}
	sort.Strings(list)

	return &Engine{
		denied:           denied,
		allowed:          list,
		allowedSet:       set,
		enforceAllowList: cfg.EnforceAllowList,
	}
}

// Default returns an engine with the built-in lists and no allow-list
// enforcement.
func Default() *Engine {
	return New(Config{})
}

// Evaluate is pure and total: every input yields a Decision.
func (e *Engine) Evaluate(command string) Decision {
	trimmed := strings.TrimSpace(command)
	verb := PrimaryVerb(trimmed)

	for _, d := range e.denied {
		if verb == d || chained(command, d) {
			return Decision{Reason: fmt.Sprintf("Command '%s' is not allowed for security reasons.", d)}
		}
	}

	if verb == "rm" {
		for _, p := range dangerousRmPatterns {
			if strings.Contains(command, p) {
				return Decision{Reason: "Dangerous rm command blocked"}
			}
		}
	}

	if e.enforceAllowList && verb != "" && !builtins[verb] && !e.allowedSet[verb] {
		return Decision{Reason: fmt.Sprintf("Command '%s' is not in the list of allowed commands.", verb)}
	}

	return Decision{Allowed: true}
}

// AllowedCommands returns a sorted copy of the advisory allow-list.
func (e *Engine) AllowedCommands() []string {
	return append([]string(nil), e.allowed...)
}

// Suggest returns allow-list entries that fuzzily match query, best match
// first. An empty query returns the whole list.
func (e *Engine) Suggest(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return e.AllowedCommands()
	}
	matches := fuzzy.Find(query, e.allowed)
	result := make([]string, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.Str)
	}
	return result
}

// EnforcesAllowList reports whether the allow-list gates execution.
func (e *Engine) EnforcesAllowList() bool {
	return e.enforceAllowList
}

// PrimaryVerb returns the first whitespace-delimited token, lower-cased.
func PrimaryVerb(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func chained(command, verb string) bool {
	for _, op := range chainOperators {
		if strings.Contains(command, op+verb) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
