//go:build unix && !linux

package supervisor

import "syscall"

// sysProcAttr puts the client into its own process group.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
