//go:build windows

package process

import "os"

// Windows has no process-group signals; interrupt and kill both terminate the child.
func signalGroup(pid int, _ os.Signal) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
