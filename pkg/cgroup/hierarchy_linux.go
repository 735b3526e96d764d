package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

// ErrNotV2 is returned when the hierarchy is not a cgroup v2 mount
var ErrNotV2 = errors.New("cgroup v2 hierarchy required")

// Hierarchy is the cgroup tree scopes are created in
type Hierarchy struct {
	// Root is the mount point of the cgroup v2 hierarchy
	Root string

	// Prefix is the directory under Root holding per-launch scopes
	Prefix string

	// Type of the hierarchy mounted at Root
	Type CgroupType
}

// NewHierarchy opens the hierarchy at root, detecting its type.
// Empty root and prefix default to /sys/fs/cgroup and minictl.
func NewHierarchy(root, prefix string) *Hierarchy {
	if root == "" {
		root = DefaultRoot
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Hierarchy{
		Root:   root,
		Prefix: prefix,
		Type:   DetectType(root),
	}
}

// Base returns the directory that holds all scopes
func (h *Hierarchy) Base() string {
	return path.Join(h.Root, h.Prefix)
}

// ensureBase creates the prefix directory and delegates the requested
// controllers down to its children
func (h *Hierarchy) ensureBase(controllers []string) error {
	if h.Type != TypeV2 {
		return fmt.Errorf("%w: %s is %v", ErrNotV2, h.Root, h.Type)
	}
	base := h.Base()
	if err := os.Mkdir(base, dirPerm); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	if len(controllers) == 0 {
		return nil
	}
	// controllers must be enabled top down: root -> prefix -> scope
	for _, dir := range []string{h.Root, base} {
		if err := enableControllers(dir, controllers); err != nil {
			return err
		}
	}
	return nil
}

// NewScope creates the scope directory for pid. A scope is never shared, an
// existing directory is an error.
func (h *Hierarchy) NewScope(pid int, controllers ...string) (*V2, error) {
	if err := h.ensureBase(controllers); err != nil {
		return nil, err
	}
	p := path.Join(h.Base(), strconv.Itoa(pid))
	if err := os.Mkdir(p, dirPerm); err != nil {
		return nil, err
	}
	return &V2{path: p}, nil
}

// enableControllers writes the missing controllers into cgroup.subtree_control
func enableControllers(dir string, controllers []string) error {
	p := path.Join(dir, cgroupSubtreeControl)
	enabled := make(map[string]bool)
	if b, err := readFile(p); err == nil {
		for _, c := range strings.Fields(string(b)) {
			enabled[c] = true
		}
	}
	var missing []string
	for _, c := range controllers {
		if !enabled[c] {
			missing = append(missing, "+"+c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := writeFile(p, []byte(strings.Join(missing, " "))); err != nil {
		return fmt.Errorf("enable controllers %v in %s: %w", missing, dir, err)
	}
	return nil
}
