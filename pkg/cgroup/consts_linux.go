package cgroup

const (
	// systemd mounted cgroups
	DefaultRoot = "/sys/fs/cgroup"

	// DefaultPrefix is the sub-directory holding one scope per launch
	DefaultPrefix = "minictl"

	cgroupProcs          = "cgroup.procs"
	cgroupSubtreeControl = "cgroup.subtree_control"

	cpuMax    = "cpu.max"
	memoryMax = "memory.max"

	filePerm = 0644
	dirPerm  = 0755

	CPU    = "cpu"
	Memory = "memory"
)

// CgroupType is the version of the mounted cgroup hierarchy
type CgroupType int

const (
	TypeV1 CgroupType = iota + 1
	TypeV2
)

func (t CgroupType) String() string {
	switch t {
	case TypeV1:
		return "v1"
	case TypeV2:
		return "v2"
	default:
		return "invalid"
	}
}
