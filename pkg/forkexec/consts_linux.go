package forkexec

import (
	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	SECCOMP_SET_MODE_FILTER   = 1
	SECCOMP_FILTER_FLAG_TSYNC = 1

	// UnshareFlags are the namespaces Runner accepts in CloneFlags
	UnshareFlags = unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWUTS | unix.CLONE_NEWCGROUP

	// bind mount the new root onto itself
	bindRoot = unix.MS_BIND | unix.MS_REC

	// mkdir permission for mount points
	mountPointPerm = 0755

	// max attempts on ETXTBSY
	etxtbsyRetry = 50
)

// Exit status of a child that failed before running the command, in the
// same convention as shells
const (
	ExitSetupFailed = 125
	ExitCannotExec  = 126
	ExitNotFound    = 127
)

// DefaultPath is searched when Env does not define PATH
const DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// used by the child for remount / to private and chroot / chdir
var (
	none  = [...]byte{'n', 'o', 'n', 'e', 0}
	slash = [...]byte{'/', 0}
	dot   = [...]byte{'.', 0}

	// go does not allow constant uintptr to be negative...
	_AT_FDCWD = unix.AT_FDCWD

	// 1ms
	etxtbsyRetryInterval = unix.Timespec{
		Nsec: 1 * 1000 * 1000,
	}
)
