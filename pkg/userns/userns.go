// Package userns writes the identity mappings of a process created in a new
// user namespace.
package userns

import (
	"fmt"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

const defaultProcRoot = "/proc"

var setGIDDeny = []byte("deny")

// Mapper maps root inside the namespace to a single host user and group
type Mapper struct {
	// ProcRoot is where the per-process files are found, /proc if empty
	ProcRoot string

	// UID and GID are the host ids mapped to 0 inside the namespace
	UID, GID int
}

// NewMapper maps namespace root to the real uid / gid of the caller
func NewMapper() *Mapper {
	return &Mapper{
		UID: unix.Getuid(),
		GID: unix.Getgid(),
	}
}

// Map writes setgroups, uid_map and gid_map for pid, in that order.
// setgroups must be denied before an unprivileged writer is allowed to
// write gid_map.
func (m *Mapper) Map(pid int) error {
	root := m.ProcRoot
	if root == "" {
		root = defaultProcRoot
	}
	dir := filepath.Join(root, strconv.Itoa(pid))

	for _, f := range []struct {
		name    string
		content []byte
	}{
		{"setgroups", setGIDDeny},
		{"uid_map", formatIDMapping(0, m.UID, 1)},
		{"gid_map", formatIDMapping(0, m.GID, 1)},
	} {
		if err := writeFile(filepath.Join(dir, f.name), f.content); err != nil {
			return fmt.Errorf("userns: write %s for pid %d: %w", f.name, pid, err)
		}
	}
	return nil
}

func formatIDMapping(containerID, hostID, size int) []byte {
	return []byte(strconv.Itoa(containerID) + " " + strconv.Itoa(hostID) + " " + strconv.Itoa(size) + "\n")
}

// writeFile writes the whole content with a single write, the kernel only
// accepts one write per map file
func writeFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	n, err := unix.Write(fd, content)
	if err != nil {
		unix.Close(fd)
		return err
	}
	if n != len(content) {
		unix.Close(fd)
		return syscall.EIO
	}
	return unix.Close(fd)
}
