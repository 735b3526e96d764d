package forkexec

import (
	"syscall"

	"github.com/minictl/minictl/pkg/mount"
)

// Runner is the configuration including the exec path, argv, the new root
// and the namespaces to create. It starts the process through Start.
type Runner struct {
	// argv and env for execve syscall for the child process.
	// Args[0] without a slash is searched in PATH (from Env) inside the new root
	Args []string
	Env  []string

	// RootDir is an opened directory fd (O_DIRECTORY) of the new root.
	// effective when greater than 0
	//
	// Without CLONE_NEWNS the child calls fchdir(RootDir), chroot(".") and
	// chdir("/"). With CLONE_NEWNS the fd belongs to the parent mount
	// namespace, so the child enters RootPath instead, checks that it is
	// the same directory as RootDir, bind mounts it onto itself, performs
	// Mounts and pivot_root into it.
	RootDir uintptr

	// RootPath is the absolute path of RootDir, required with CLONE_NEWNS
	RootPath string

	// clone unshare flag to create linux namespace, effective when clone child
	CloneFlags uintptr

	// mounts defines the mount syscalls after entering the new root, targets
	// are relative to the new root
	// need CAP_SYS_ADMIN inside the namespace (e.g. unshare user namespace)
	Mounts []mount.SyscallParams

	// HostName to be set after unshare UTS & user (CAP_SYS_ADMIN)
	HostName string

	// seccomp syscall filter applied to child, PR_SET_NO_NEW_PRIVS is set before
	Seccomp *syscall.SockFprog

	// MapFunc will invoke with the child pid while the child is blocked before
	// any isolation step, e.g. write uid_map / gid_map. If MapFunc returns an
	// error, the child is killed and the error is reported
	MapFunc func(int) error

	// Parent and child process with sync status through a socket pair.
	// SyncFunc will invoke with the child pid after the child finished its
	// setup and right before execve. If SyncFunc return some error,
	// parent will signal child to stop and report the error
	SyncFunc func(int) error
}
