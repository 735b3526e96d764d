package container

import (
	"go.uber.org/zap"
)

// State is the lifecycle state of a launched process
type State int

// States are strictly ordered
const (
	StateCreated State = iota + 1
	StateMapped
	StateResumed
	StateLimited
	StateExited
)

var stateToString = []string{
	"Unknown",
	"Created",
	"Mapped",
	"Resumed",
	"Limited",
	"Exited",
}

func (s State) String() string {
	if s >= StateCreated && s <= StateExited {
		return stateToString[s]
	}
	return "Unknown"
}

// Process is a launched child
type Process struct {
	Pid        int
	Namespaces uintptr
	State      State

	logger *zap.Logger
}

// transition moves the process forward, a state never goes backwards
func (p *Process) transition(s State) bool {
	if s <= p.State {
		return false
	}
	p.State = s
	p.logger.Debug("process state", zap.Int("pid", p.Pid), zap.Stringer("state", s))
	return true
}
