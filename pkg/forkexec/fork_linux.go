package forkexec

import (
	"errors"
	"fmt"
	"path"
	"syscall"
	"unsafe" // required for go:linkname.

	"golang.org/x/sys/unix"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// Start will clone the child into the new namespaces, write the id maps,
// wait for the child to finish its setup and let it execve.
//
// Return pid and potential error. If the child reported a failure through
// a ChildError, the pid is still returned and the child has exited (or is
// exiting) with the status of ChildError.ExitStatus, the caller is
// responsible to wait for it. For any other error the child is already
// killed and reaped and the returned pid is 0.
func (r *Runner) Start() (int, error) {
	paths, argv, env, err := prepareExec(r.Args, r.Env)
	if err != nil {
		return 0, err
	}

	// prepare hostname
	hostname, err := syscallStringFromString(r.HostName)
	if err != nil {
		return 0, err
	}

	// prepare root path, entered inside the new mount namespace
	var rootPath *byte
	if r.RootDir > 0 && r.CloneFlags&syscall.CLONE_NEWNS == syscall.CLONE_NEWNS {
		if !path.IsAbs(r.RootPath) {
			return 0, fmt.Errorf("forkexec: root path %q is not absolute", r.RootPath)
		}
		enter := path.Clean(r.RootPath)
		if enter == "/" {
			// a lookup of / does not cross the bind mount stacked on it, .. does
			enter = "/.."
		}
		if rootPath, err = syscall.BytePtrFromString(enter); err != nil {
			return 0, err
		}
	}

	// socketpair p used to notify child the uid / gid mapping have been setup
	// socketpair p is also used to sync with parent before final execve
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, paths, argv, env, hostname, rootPath, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		err        error
		childError ChildError
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, ChildError{Err: err1, Location: LocClone}
	}

	// setup uid / gid map while the child is blocked
	if r.MapFunc != nil {
		err = r.MapFunc(pid)
	}
	// resume the child, a non-zero token makes it exit
	token := errnoToken(err)
	if err2 := writeErrno(p[0], token); err2 != nil && err == nil {
		err = fmt.Errorf("forkexec: resume child: %w", err2)
	}
	if err != nil {
		goto fail
	}

	// child reports readiness (Err == 0) or the failed location
	if err = readChildError(p[0], &childError); err != nil {
		goto fail
	}
	if childError.Err != 0 {
		unix.Close(p[0])
		return pid, childError
	}

	// if syncfunc return error, then fail child immediately
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}
	// otherwise, ack child
	if err = writeErrno(p[0], 0); err != nil {
		goto fail
	}

	// if read anything mean child failed after sync (close_on_exec so it should not block)
	childError = ChildError{}
	err = readChildError(p[0], &childError)
	unix.Close(p[0])
	switch {
	case errors.Is(err, errEOF):
		return pid, nil
	case err != nil:
		goto failAfterClose
	default:
		return pid, childError
	}

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	return 0, err
}

// errEOF means the socket was closed on execve
var errEOF = errors.New("forkexec: eof")

// errnoToken converts the map error to the token written to the child
func errnoToken(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	return syscall.EPERM
}

func writeErrno(fd int, errno syscall.Errno) error {
	n, _, e := syscall.Syscall(syscall.SYS_WRITE, uintptr(fd), uintptr(unsafe.Pointer(&errno)), unsafe.Sizeof(errno))
	if e != 0 {
		return e
	}
	if n != unsafe.Sizeof(errno) {
		return syscall.EPIPE
	}
	return nil
}

// readChildError reads one ChildError, errEOF if the child closed the socket
func readChildError(fd int, c *ChildError) error {
	n, _, e := syscall.Syscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(c)), unsafe.Sizeof(*c))
	for e == syscall.EINTR {
		n, _, e = syscall.Syscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(c)), unsafe.Sizeof(*c))
	}
	switch {
	case e != 0:
		return fmt.Errorf("forkexec: sync with child: %w", e)
	case n == 0:
		return errEOF
	case n != unsafe.Sizeof(*c):
		return fmt.Errorf("forkexec: sync with child: %w", syscall.EPIPE)
	}
	return nil
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
