package supervisor

import "syscall"

// sysProcAttr puts the client into its own process group, so Close reaches
// every process it forks. The kernel terminates the client if the supervisor dies.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
