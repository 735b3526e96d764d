// Package cgroup places a process into its own cgroup v2 scope and
// enforces cpu and memory ceilings on it.
//
// Every launch gets one scope directory keyed by the child pid:
//
//	<root>/<prefix>/<pid>/cpu.max
//	<root>/<prefix>/<pid>/memory.max
//	<root>/<prefix>/<pid>/cgroup.procs
//
// The hierarchy root is injected through Hierarchy so tests can use a
// sandboxed directory instead of /sys/fs/cgroup.
package cgroup
