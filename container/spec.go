package container

import (
	"errors"
	"fmt"

	"github.com/minictl/minictl/pkg/cgroup"
	"github.com/minictl/minictl/pkg/size"
)

// maximum length of hostname (HOST_NAME_MAX)
const maxHostNameLen = 64

var (
	// ErrEmptyCommand is returned when RunSpec has no command
	ErrEmptyCommand = errors.New("container: empty command")

	// ErrEmptyRootfs is returned when RunSpec has no root file system
	ErrEmptyRootfs = errors.New("container: empty rootfs")
)

// RunSpec is the configuration of one launch
type RunSpec struct {
	// Rootfs is the directory that becomes / of the command
	Rootfs string

	// Args is the command and its arguments, Args[0] is searched in PATH
	// inside the new root if it contains no slash
	Args []string

	// Env of the command, nil inherits the environment of the caller
	Env []string

	// Hostname inside the UTS namespace, empty keeps the inherited one
	Hostname string

	// CPULimit is the percentage of one CPU ("1" to "100"), empty for none
	CPULimit string

	// MemLimit is the memory ceiling (e.g. "256M"), empty for none
	MemLimit string

	// Tmpfs lists extra tmpfs mount points inside the new root
	Tmpfs []string

	// Seccomp loads the default deny list syscall filter before execve
	Seccomp bool
}

// Validate checks the spec without touching any resource
func (s *RunSpec) Validate() error {
	_, err := s.limits()
	return err
}

// limits validates the spec and parses the requested limits
func (s *RunSpec) limits() (cgroup.Limits, error) {
	var lim cgroup.Limits
	if len(s.Args) == 0 {
		return lim, ErrEmptyCommand
	}
	if s.Rootfs == "" {
		return lim, ErrEmptyRootfs
	}
	if len(s.Hostname) > maxHostNameLen {
		return lim, fmt.Errorf("container: hostname %q longer than %d", s.Hostname, maxHostNameLen)
	}
	if s.CPULimit != "" {
		pct, err := cgroup.ParseCPUPercent(s.CPULimit)
		if err != nil {
			return lim, fmt.Errorf("container: cpu limit: %w", err)
		}
		lim.CPUPercent = pct
	}
	if s.MemLimit != "" {
		mem, err := size.Parse(s.MemLimit)
		if err != nil {
			return lim, fmt.Errorf("container: memory limit: %w", err)
		}
		if mem == 0 {
			return lim, fmt.Errorf("container: memory limit: %w: must be positive", size.ErrInvalid)
		}
		lim.Memory = mem
	}
	return lim, nil
}
