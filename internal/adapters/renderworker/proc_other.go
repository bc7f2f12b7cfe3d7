//go:build !unix

package renderworker

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func killedBySignal(*os.ProcessState) (string, bool) {
	return "", false
}
