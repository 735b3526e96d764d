// Package container launches a command inside new user, UTS, PID and mount
// namespaces with a replaced root file system and optional cgroup v2 limits.
//
// # Launch
//
// The launcher opens the root file system before cloning, then:
//
//   - clones the child into all four namespaces at once
//   - writes the uid / gid maps while the child is blocked (Created -> Mapped)
//   - resumes the child, which sets the host name, makes its mounts private,
//     enters the root through the opened fd and mounts /proc
//   - attaches the cgroup once the child is ready (Resumed -> Limited)
//   - lets the child execve and waits for it (Exited)
//
// A child that fails its own setup exits with 125, 126 if the command could
// not be executed and 127 if it was not found. A command killed by a signal
// is reported as 128 + signal.
package container
