package mount

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	mFlag    = unix.MS_NOSUID | unix.MS_NOATIME | unix.MS_NODEV
	procFlag = unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV
)

// Builder builds fork_exec friendly mount syscall format. Targets are
// relative to the new root of the child.
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates new mount builder instance
func NewBuilder() *Builder {
	return &Builder{}
}

// Build creates sequence of syscalls for fork_exec
func (b *Builder) Build() ([]SyscallParams, error) {
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		target, err := cleanTarget(m.Target)
		if err != nil {
			return nil, err
		}
		m.Target = target
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		ret = append(ret, *sp)
	}
	return ret, nil
}

// cleanTarget makes the target relative to the new root
func cleanTarget(target string) (string, error) {
	t := strings.TrimLeft(path.Clean("/"+target), "/")
	if t == "" {
		return "", fmt.Errorf("mount: invalid target %q", target)
	}
	return t, nil
}

// WithMounts add mounts to builder
func (b *Builder) WithMounts(m []Mount) *Builder {
	b.Mounts = append(b.Mounts, m...)
	return b
}

// WithMount add single mount to builder
func (b *Builder) WithMount(m Mount) *Builder {
	b.Mounts = append(b.Mounts, m)
	return b
}

// WithTmpfs add a tmpfs mount to builder
func (b *Builder) WithTmpfs(target, data string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  mFlag,
		Data:   data,
	})
	return b
}

// WithProc add proc file system at /proc
func (b *Builder) WithProc() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: "proc",
		FsType: "proc",
		Flags:  procFlag,
	})
	return b
}

func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
