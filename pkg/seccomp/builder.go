package seccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/net/bpf"
)

// DefaultDenyList is the set of syscalls a container process has no
// business calling. Everything else is allowed.
var DefaultDenyList = []string{
	"kexec_load", "reboot",
	"init_module", "finit_module", "delete_module",
	"swapon", "swapoff", "acct",
	"open_by_handle_at", "perf_event_open",
	"keyctl", "add_key", "request_key",
	"umount2",
}

// Builder is used to build the filter
type Builder struct {
	// Deny lists the syscalls that fail with EPERM
	Deny []string
}

// NewDenyFilter builds an allow-by-default filter that returns EPERM for
// the named syscalls. An empty list gives a nil Filter, nothing to load.
func NewDenyFilter(names []string) (Filter, error) {
	b := Builder{Deny: names}
	return b.Build()
}

// Build builds the filter, nil if nothing is denied
func (b *Builder) Build() (Filter, error) {
	if len(b.Deny) == 0 {
		return nil, nil
	}
	info, err := arch.GetInfo("")
	if err != nil {
		return nil, fmt.Errorf("seccomp: %w", err)
	}
	names := make([]string, 0, len(b.Deny))
	for _, n := range b.Deny {
		if _, ok := info.SyscallNames[n]; !ok {
			return nil, fmt.Errorf("seccomp: unknown syscall %q for %s", n, info.Name)
		}
		names = append(names, n)
	}

	policy := libseccomp.Policy{
		DefaultAction: libseccomp.ActionAllow,
		Syscalls: []libseccomp.SyscallGroup{{
			Names:  names,
			Action: libseccomp.ActionErrno,
		}},
	}
	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble policy: %w", err)
	}
	return toFilter(insts)
}

func toFilter(insts []bpf.Instruction) (Filter, error) {
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble bpf: %w", err)
	}
	f := make(Filter, 0, len(raw))
	for _, r := range raw {
		f = append(f, syscall.SockFilter{
			Code: r.Op,
			Jt:   r.Jt,
			Jf:   r.Jf,
			K:    r.K,
		})
	}
	return f, nil
}
