// Package forkexec starts a process inside new linux namespaces with a
// replaced root file system and a parent / child handshake.
//
// The child is created with a raw clone syscall and blocks on a socket pair
// until the parent has written its uid / gid maps. It then sets the host
// name, makes the mount tree private, enters the new root through an
// inherited directory fd, performs mounts, optionally loads a seccomp filter
// and reports readiness. The parent runs its sync hook (e.g. attach the
// cgroup) and acknowledges, after which the child calls execve.
//
// unshare pid / user namespaces and seccomp requires kernel >= 3.8
package forkexec
