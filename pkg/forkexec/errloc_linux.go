package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation defines the location where child process failed to exec
type ErrorLocation int

// ChildError defines the specific error and location where it failed
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location constants
const (
	LocClone ErrorLocation = iota + 1
	LocCloseWrite
	LocResumeRead
	LocSetHostName
	LocMountPrivate
	LocEnterRoot
	LocBindRoot
	LocChroot
	LocChdir
	LocMountMkdir
	LocMount
	LocPivotRoot
	LocSetNoNewPrivs
	LocSeccomp
	LocSyncWrite
	LocSyncRead
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"resume_read",
	"sethostname",
	"mount(private)",
	"enter_root",
	"mount(bind_root)",
	"chroot",
	"chdir",
	"mount(mkdir)",
	"mount",
	"pivot_root",
	"set_no_new_privs",
	"seccomp",
	"sync_write",
	"sync_read",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// ExitStatus returns the exit status the child used for this error
func (e ChildError) ExitStatus() int {
	return exitStatus(e.Location, e.Err)
}

//go:nosplit
func exitStatus(loc ErrorLocation, err syscall.Errno) int {
	if loc != LocExecve {
		return ExitSetupFailed
	}
	if err == syscall.ENOENT || err == syscall.ENOTDIR {
		return ExitNotFound
	}
	return ExitCannotExec
}
