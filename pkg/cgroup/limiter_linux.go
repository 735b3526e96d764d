package cgroup

import (
	"fmt"

	"github.com/minictl/minictl/pkg/size"
)

// Limits are the ceilings of a scope, zero values are not applied
type Limits struct {
	CPUPercent int
	Memory     size.Size
}

// IsZero reports whether no limit is requested
func (l Limits) IsZero() bool {
	return l.CPUPercent == 0 && l.Memory == 0
}

func (l Limits) String() string {
	return fmt.Sprintf("Limits[CPU=%d%%, Memory=%v]", l.CPUPercent, l.Memory)
}

func (l Limits) controllers() []string {
	var c []string
	if l.CPUPercent != 0 {
		c = append(c, CPU)
	}
	if l.Memory != 0 {
		c = append(c, Memory)
	}
	return c
}

// Limiter attaches processes to freshly created scopes of a hierarchy
type Limiter struct {
	Hierarchy *Hierarchy
}

// NewLimiter creates a limiter on the given hierarchy
func NewLimiter(h *Hierarchy) *Limiter {
	return &Limiter{Hierarchy: h}
}

// Attach creates the scope for pid, writes the limits and finally moves pid
// into it. The process is only added once every limit is in place. If any
// step fails the scope directory is removed again.
func (l *Limiter) Attach(pid int, lim Limits) (cg *V2, err error) {
	var quota, period uint64
	if lim.CPUPercent != 0 {
		if quota, period, err = CPUBandwidth(lim.CPUPercent); err != nil {
			return nil, err
		}
	}

	cg, err = l.Hierarchy.NewScope(pid, lim.controllers()...)
	if err != nil {
		return nil, fmt.Errorf("cgroup: create scope for pid %d: %w", pid, err)
	}
	// if failed, remove the created directory
	defer func() {
		if err != nil {
			cg.Destroy()
			cg = nil
		}
	}()

	if lim.CPUPercent != 0 {
		if err = cg.SetCPUBandwidth(quota, period); err != nil {
			return cg, fmt.Errorf("cgroup: set %s: %w", cpuMax, err)
		}
	}
	if lim.Memory != 0 {
		if err = cg.SetMemoryLimit(lim.Memory.Byte()); err != nil {
			return cg, fmt.Errorf("cgroup: set %s: %w", memoryMax, err)
		}
	}
	if err = cg.AddProc(pid); err != nil {
		return cg, fmt.Errorf("cgroup: add pid %d: %w", pid, err)
	}
	return cg, nil
}
