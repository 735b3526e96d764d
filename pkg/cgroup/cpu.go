package cgroup

import (
	"errors"
	"fmt"
	"strconv"
)

// DefaultCPUPeriod is the cpu.max period in microseconds (100ms). It is a
// policy choice, quotas are computed against it.
const DefaultCPUPeriod uint64 = 100000

// ErrInvalidCPU is returned for cpu percentages outside (0, 100]
var ErrInvalidCPU = errors.New("invalid cpu limit")

// ParseCPUPercent parses a whole cpu percentage in (0, 100]
func ParseCPUPercent(s string) (int, error) {
	pct, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: not an integer", ErrInvalidCPU, s)
	}
	if _, _, err := CPUBandwidth(pct); err != nil {
		return 0, err
	}
	return pct, nil
}

// CPUBandwidth translates a percentage of one cpu into the cpu.max
// (quota, period) pair with period fixed at DefaultCPUPeriod
func CPUBandwidth(pct int) (quota, period uint64, err error) {
	if pct <= 0 || pct > 100 {
		return 0, 0, fmt.Errorf("%w: %d%% is outside (0, 100]", ErrInvalidCPU, pct)
	}
	period = DefaultCPUPeriod
	quota = period * uint64(pct) / 100
	return quota, period, nil
}
