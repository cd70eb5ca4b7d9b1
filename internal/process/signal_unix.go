//go:build !windows

package process

import (
	"os"
	"syscall"
)

// signalGroup delivers sig to the whole process group led by pid.
func signalGroup(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	return syscall.Kill(-pid, s)
}

func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
