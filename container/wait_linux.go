package container

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ExitFailure is returned when no child could be started or waited
const ExitFailure = 1

// ExitCode translates a wait status: the exit status if the process exited,
// 128 + signal if it was killed by a signal and 1 otherwise
func ExitCode(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return ExitFailure
	}
}

// killProcess sends the kill on cancel
var killProcess = unix.Kill

// wait blocks until pid terminates. If ctx is done before, the process is
// killed and reaped
func wait(ctx context.Context, pid int) (int, error) {
	var (
		wstatus unix.WaitStatus
		info    unix.Siginfo

		// reaped is set under mu once the pid may be reused
		mu     sync.Mutex
		reaped bool
	)

	finish := make(chan struct{})
	defer close(finish)

	// handle cancel
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			if !reaped {
				killProcess(pid, unix.SIGKILL)
			}
			mu.Unlock()
		case <-finish:
		}
	}()

	// wait for the exit without reaping, the pid stays a zombie
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitFailure, fmt.Errorf("container: waitid %d: %w", pid, err)
		}
		break
	}

	mu.Lock()
	defer mu.Unlock()
	for {
		_, err := unix.Wait4(pid, &wstatus, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return ExitFailure, fmt.Errorf("container: wait4 %d: %w", pid, err)
		}
		reaped = true
		return ExitCode(wstatus), nil
	}
}
