package cgroup

import (
	"path"
	"strconv"
	"strings"
)

// V2 is a single cgroup v2 directory
type V2 struct {
	path string
}

// Path returns the directory of the cgroup
func (c *V2) Path() string {
	return c.path
}

// AddProc writes the pid into cgroup.procs
func (c *V2) AddProc(pid int) error {
	return c.WriteUint(cgroupProcs, uint64(pid))
}

// Destroy removes the cgroup directory, it fails while processes remain
func (c *V2) Destroy() error {
	return remove(c.path)
}

// SetCPUBandwidth set cpu.max quota period
func (c *V2) SetCPUBandwidth(quota, period uint64) error {
	content := strconv.FormatUint(quota, 10) + " " + strconv.FormatUint(period, 10)
	return c.WriteFile(cpuMax, []byte(content))
}

// SetMemoryLimit memory.max
func (c *V2) SetMemoryLimit(l uint64) error {
	return c.WriteUint(memoryMax, l)
}

// WriteUint writes uint64 into given file
func (c *V2) WriteUint(filename string, i uint64) error {
	return c.WriteFile(filename, []byte(strconv.FormatUint(i, 10)))
}

// ReadUint read uint64 from given file
func (c *V2) ReadUint(filename string) (uint64, error) {
	b, err := c.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	s, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, err
	}
	return s, nil
}

// WriteFile writes cgroup file and handles potential EINTR error while writes to
// the slow device (cgroup)
func (c *V2) WriteFile(name string, content []byte) error {
	p := path.Join(c.path, name)
	return writeFile(p, content)
}

// ReadFile reads cgroup file and handles potential EINTR error while read to
// the slow device (cgroup)
func (c *V2) ReadFile(name string) ([]byte, error) {
	p := path.Join(c.path, name)
	return readFile(p)
}
