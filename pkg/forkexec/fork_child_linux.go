package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reference to src/syscall/exec_linux.go
//
//go:norace
func forkAndExecInChild(r *Runner, paths, argv, env []*byte, hostname, rootPath *byte, p [2]int) (r1 uintptr, err1 syscall.Errno) {
	// Acquire the fork lock so that no other threads
	// create new fds that are not yet close-on-exec
	// before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	// UnshareFlags (new namespaces) is activated by clone syscall
	r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(syscall.SIGCHLD)|(r.CloneFlags&UnshareFlags), 0, 0, 0, 0, 0)
	if err1 != 0 || r1 != 0 {
		// in parent process, immediate return
		return
	}

	// In child process
	afterForkInChild()
	// Notice: cannot call any GO functions beyond this point

	pipe := p[1]
	var (
		err2       syscall.Errno
		childError ChildError
		eaccess    bool
		fd         uintptr
		rootStat   syscall.Stat_t
		cwdStat    syscall.Stat_t
	)

	// Close write end of pipe
	if _, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(p[0]), 0, 0); err1 != 0 {
		childExitError(pipe, LocCloseWrite, err1)
	}

	// Block until the parent has written uid_map / gid_map for us since we do
	// not have capabilities in the original namespace. No isolation step
	// happens before the resume token
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(pipe), uintptr(unsafe.Pointer(&err2)), unsafe.Sizeof(err2))
	if err1 != 0 {
		childExitError(pipe, LocResumeRead, err1)
	}
	if r1 != unsafe.Sizeof(err2) {
		childExitError(pipe, LocResumeRead, syscall.EINVAL)
	}
	if err2 != 0 {
		childExitError(pipe, LocResumeRead, err2)
	}

	// SetHostName
	if hostname != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_SETHOSTNAME,
			uintptr(unsafe.Pointer(hostname)), uintptr(len(r.HostName)), 0)
		if err1 != 0 {
			childExitError(pipe, LocSetHostName, err1)
		}
	}

	// If mount point is unshared, mark root as private to avoid propagate
	// outside to the original mount namespace
	if r.CloneFlags&syscall.CLONE_NEWNS == syscall.CLONE_NEWNS {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&none[0])),
			uintptr(unsafe.Pointer(&slash[0])), 0, syscall.MS_REC|syscall.MS_PRIVATE, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocMountPrivate, err1)
		}
	}

	if rootPath != nil {
		// RootDir lives in the parent mount namespace and mounts under it are
		// refused, enter the same directory by path and make it a mount point
		// of this namespace
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(rootPath)), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}
		// mount(".", ".", NULL, MS_BIND | MS_REC, NULL)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&dot[0])),
			uintptr(unsafe.Pointer(&dot[0])), 0, bindRoot, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocBindRoot, err1)
		}
		// cwd is still the covered directory
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(rootPath)), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}

		// the path must still point to the directory the parent opened
		_, _, err1 = syscall.RawSyscall(syscall.SYS_FSTAT, r.RootDir, uintptr(unsafe.Pointer(&rootStat)), 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}
		fd, _, err1 = syscall.RawSyscall6(syscall.SYS_OPENAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&dot[0])),
			uintptr(syscall.O_RDONLY|syscall.O_DIRECTORY|syscall.O_CLOEXEC), 0, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_FSTAT, fd, uintptr(unsafe.Pointer(&cwdStat)), 0)
		syscall.RawSyscall(syscall.SYS_CLOSE, fd, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}
		if rootStat.Dev != cwdStat.Dev || rootStat.Ino != cwdStat.Ino {
			childExitError(pipe, LocEnterRoot, syscall.ESTALE)
		}
	} else if r.RootDir > 0 {
		// no new mount namespace, enter the new root through the inherited fd
		_, _, err1 = syscall.RawSyscall(syscall.SYS_FCHDIR, r.RootDir, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocEnterRoot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHROOT, uintptr(unsafe.Pointer(&dot[0])), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChroot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(&slash[0])), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChdir, err1)
		}
	}

	// performing mounts
	for i, m := range r.Mounts {
		// mkdirs(target)
		for _, p := range m.Prefixes {
			_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(p)), mountPointPerm)
			if err1 != 0 && err1 != syscall.EEXIST {
				childExitErrorWithIndex(pipe, LocMountMkdir, i, err1)
			}
		}
		// mount(source, target, fsType, flags, data)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)),
			uintptr(unsafe.Pointer(m.Target)), uintptr(unsafe.Pointer(m.FsType)), uintptr(m.Flags),
			uintptr(unsafe.Pointer(m.Data)), 0)
		if err1 != 0 {
			childExitErrorWithIndex(pipe, LocMount, i, err1)
		}
	}

	// pivot_root(".", ".") stacks the old root on top of the new one,
	// then detach it
	if rootPath != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_PIVOT_ROOT, uintptr(unsafe.Pointer(&dot[0])), uintptr(unsafe.Pointer(&dot[0])), 0)
		if err1 != 0 {
			childExitError(pipe, LocPivotRoot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_UMOUNT2, uintptr(unsafe.Pointer(&dot[0])), syscall.MNT_DETACH, 0)
		if err1 != 0 {
			childExitError(pipe, LocPivotRoot, err1)
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(&slash[0])), 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocChdir, err1)
		}
	}

	// Load seccomp filter, no new privs is required for unprivileged seccomp
	if r.Seccomp != nil {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0)
		if err1 != 0 {
			childExitError(pipe, LocSetNoNewPrivs, err1)
		}
		_, _, err1 = syscall.RawSyscall(unix.SYS_SECCOMP, SECCOMP_SET_MODE_FILTER, SECCOMP_FILTER_FLAG_TSYNC, uintptr(unsafe.Pointer(r.Seccomp)))
		if err1 != 0 {
			childExitError(pipe, LocSeccomp, err1)
		}
	}

	// Before exec, sync with parent through pipe (configured as close_on_exec)
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&childError)), unsafe.Sizeof(childError))
	if r1 == 0 || err1 != 0 {
		childExitError(pipe, LocSyncWrite, err1)
	}
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(pipe), uintptr(unsafe.Pointer(&err2)), unsafe.Sizeof(err2))
	if r1 == 0 || err1 != 0 {
		childExitError(pipe, LocSyncRead, err1)
	}

	// time to exec, try every candidate like execvp
	err1 = syscall.ENOENT
	for _, path := range paths {
		_, _, err1 = syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(path)),
			uintptr(unsafe.Pointer(&argv[0])), uintptr(unsafe.Pointer(&env[0])))
		// Fix potential ETXTBSY but with caution (max 50 attempt)
		// The ETXTBSY happens when the executable was just written into the
		// rootfs and another goroutine forks but not execve yet, the forked
		// process is still holding the fd of the written executable
		for range [etxtbsyRetry]struct{}{} {
			if err1 != syscall.ETXTBSY {
				break
			}
			// wait instead of busy wait
			syscall.RawSyscall(unix.SYS_NANOSLEEP, uintptr(unsafe.Pointer(&etxtbsyRetryInterval)), 0, 0)
			_, _, err1 = syscall.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(path)),
				uintptr(unsafe.Pointer(&argv[0])), uintptr(unsafe.Pointer(&env[0])))
		}
		if err1 == syscall.EACCES {
			eaccess = true
			continue
		}
		if err1 != syscall.ENOENT && err1 != syscall.ENOTDIR {
			break
		}
	}
	if eaccess && (err1 == syscall.ENOENT || err1 == syscall.ENOTDIR) {
		err1 = syscall.EACCES
	}
	childExitError(pipe, LocExecve, err1)
	return
}

//go:nosplit
func childExitError(pipe int, loc ErrorLocation, err syscall.Errno) {
	childExitErrorWithIndex(pipe, loc, 0, err)
}

//go:nosplit
func childExitErrorWithIndex(pipe int, loc ErrorLocation, idx int, err syscall.Errno) {
	// errno 0 on the pipe means ready, never report it as a failure
	if err == 0 {
		err = syscall.EPIPE
	}
	childError := ChildError{
		Err:      err,
		Location: loc,
		Index:    idx,
	}

	// send error code on pipe
	syscall.RawSyscall(unix.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&childError)), unsafe.Sizeof(childError))
	status := exitStatus(loc, err)
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(status), 0, 0)
	}
}
