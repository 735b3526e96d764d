// Package image resolves a named image directory into a container.RunSpec.
//
// An image is a directory <dir>/<name> holding the root file system in
// rootfs/ and an optional config.txt of key=value lines:
//
//	entrypoint=/bin/ls
//	args=-l /etc
//	hostname=box
//	mem_limit=256M
//	cpu_limit=50
//
// args is split on white space, there is no quoting.
package image

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minictl/minictl/container"
)

// DefaultEntrypoint is used when config.txt does not name one
const DefaultEntrypoint = "/bin/sh"

const (
	rootfsDir  = "rootfs"
	configFile = "config.txt"
)

// ErrInvalidName is returned for image names that are not a single path element
var ErrInvalidName = errors.New("image: invalid name")

// Config is the content of config.txt, empty fields are unset
type Config struct {
	Entrypoint string
	Args       []string
	Hostname   string
	MemLimit   string
	CPULimit   string
}

// Override holds the command line values that take precedence over Config
type Override struct {
	Hostname string
	MemLimit string
	CPULimit string
	Tmpfs    []string
	Seccomp  bool
}

// Image is a loaded image
type Image struct {
	Name   string
	Rootfs string
	Config Config
}

// Load resolves the image name under dir. The rootfs must be a directory,
// a missing config.txt means defaults.
func Load(dir, name string) (*Image, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	base := filepath.Join(dir, name)
	rootfs := filepath.Join(base, rootfsDir)
	fi, err := os.Stat(rootfs)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("image: %s is not a directory", rootfs)
	}

	img := &Image{Name: name, Rootfs: rootfs}
	f, err := os.Open(filepath.Join(base, configFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return img, nil
	case err != nil:
		return nil, fmt.Errorf("image: %w", err)
	}
	defer f.Close()

	if img.Config, err = ParseConfig(f); err != nil {
		return nil, fmt.Errorf("image: %s: %w", f.Name(), err)
	}
	return img, nil
}

// ParseConfig reads key=value lines. Unknown keys and lines without '=' are
// ignored, a later line overrides an earlier one.
func ParseConfig(r io.Reader) (Config, error) {
	var c Config
	s := bufio.NewScanner(r)
	for s.Scan() {
		key, value, ok := strings.Cut(strings.TrimRight(s.Text(), "\r"), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "entrypoint":
			c.Entrypoint = strings.TrimSpace(value)
		case "args":
			c.Args = strings.Fields(value)
		case "hostname":
			c.Hostname = strings.TrimSpace(value)
		case "mem_limit":
			c.MemLimit = strings.TrimSpace(value)
		case "cpu_limit":
			c.CPULimit = strings.TrimSpace(value)
		}
	}
	if err := s.Err(); err != nil {
		return c, err
	}
	return c, nil
}

// RunSpec builds the launch spec, values of o win over the config when set
func (i *Image) RunSpec(o Override) container.RunSpec {
	entry := i.Config.Entrypoint
	if entry == "" {
		entry = DefaultEntrypoint
	}
	args := append([]string{entry}, i.Config.Args...)
	return container.RunSpec{
		Rootfs:   i.Rootfs,
		Args:     args,
		Hostname: pick(o.Hostname, i.Config.Hostname),
		MemLimit: pick(o.MemLimit, i.Config.MemLimit),
		CPULimit: pick(o.CPULimit, i.Config.CPULimit),
		Tmpfs:    o.Tmpfs,
		Seccomp:  o.Seccomp,
	}
}

func pick(override, value string) string {
	if override != "" {
		return override
	}
	return value
}
