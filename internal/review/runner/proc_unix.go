//go:build unix

package runner

import "golang.org/x/sys/unix"

// sysProcAttr starts the program in its own process group so a timeout
// kills everything it forked.
func sysProcAttr() *unix.SysProcAttr {
	return &unix.SysProcAttr{Setpgid: true}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}
