//go:build windows

package shell

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
