package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/minictl/minictl/pkg/cgroup"
	"github.com/minictl/minictl/pkg/forkexec"
	"github.com/minictl/minictl/pkg/mount"
	"github.com/minictl/minictl/pkg/seccomp"
	"github.com/minictl/minictl/pkg/userns"
)

// CloneFlags are the namespaces every launched process is created in
const CloneFlags = unix.CLONE_NEWUSER | unix.CLONE_NEWUTS | unix.CLONE_NEWPID | unix.CLONE_NEWNS

// IdentityMapper writes the uid / gid maps of a process in a new user namespace
type IdentityMapper interface {
	Map(pid int) error
}

// ResourceLimiter puts a process into a new cgroup with the given limits
type ResourceLimiter interface {
	Attach(pid int, lim cgroup.Limits) (*cgroup.V2, error)
}

// Launcher starts containers. The zero value maps the caller to root inside
// the namespace, has no limiter and does not log.
type Launcher struct {
	// Mapper writes the id maps, defaults to userns.NewMapper()
	Mapper IdentityMapper

	// Limiter attaches limits, requested limits are skipped with a warning if nil
	Limiter ResourceLimiter

	Logger *zap.Logger
}

// NewLauncher creates a launcher with the given limiter
func NewLauncher(limiter ResourceLimiter, logger *zap.Logger) *Launcher {
	return &Launcher{
		Mapper:  userns.NewMapper(),
		Limiter: limiter,
		Logger:  logger,
	}
}

func (l *Launcher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

func (l *Launcher) mapper() IdentityMapper {
	if l.Mapper == nil {
		return userns.NewMapper()
	}
	return l.Mapper
}

// Launch runs spec in new namespaces and waits for it. The returned code is
// the translated exit status of the command, or 1 with an error if no child
// was started. If ctx is done before the command exits, it is killed.
func (l *Launcher) Launch(ctx context.Context, spec RunSpec) (int, error) {
	logger := l.logger()

	lim, err := spec.limits()
	if err != nil {
		return ExitFailure, err
	}

	mb := mount.NewBuilder().WithProc()
	for _, t := range spec.Tmpfs {
		mb.WithTmpfs(t, "")
	}
	mounts, err := mb.Build()
	if err != nil {
		return ExitFailure, fmt.Errorf("container: %w", err)
	}

	var filter *syscall.SockFprog
	if spec.Seccomp {
		f, err := seccomp.NewDenyFilter(seccomp.DefaultDenyList)
		if err != nil {
			return ExitFailure, fmt.Errorf("container: %w", err)
		}
		filter = f.SockFprog()
	}

	rootPath, err := filepath.Abs(spec.Rootfs)
	if err != nil {
		return ExitFailure, fmt.Errorf("container: rootfs: %w", err)
	}
	root, err := openRoot(rootPath)
	if err != nil {
		return ExitFailure, err
	}
	defer root.Close()

	p := &Process{Namespaces: CloneFlags, logger: logger}
	var cg *cgroup.V2

	r := &forkexec.Runner{
		Args:       spec.Args,
		Env:        spec.env(),
		RootDir:    root.Fd(),
		RootPath:   rootPath,
		CloneFlags: CloneFlags,
		Mounts:     mounts,
		HostName:   spec.Hostname,
		Seccomp:    filter,
		MapFunc: func(pid int) error {
			p.Pid = pid
			p.transition(StateCreated)
			if err := l.mapper().Map(pid); err != nil {
				return fmt.Errorf("container: map ids: %w", err)
			}
			p.transition(StateMapped)
			return nil
		},
		SyncFunc: func(pid int) error {
			p.transition(StateResumed)
			cg = l.attach(pid, lim)
			if cg != nil {
				p.transition(StateLimited)
			}
			return nil
		},
	}
	logger.Debug("launch",
		zap.String("rootfs", spec.Rootfs),
		zap.Strings("args", spec.Args),
		zap.String("hostname", spec.Hostname),
		zap.Stringer("limits", lim),
		zap.Stringer("mounts", mb),
		zap.Bool("seccomp", spec.Seccomp))

	code, err := l.run(ctx, r, p)
	if cg != nil {
		if err := cg.Destroy(); err != nil {
			logger.Warn("remove cgroup", zap.String("path", cg.Path()), zap.Error(err))
		}
	}
	return code, err
}

// Chroot runs args with rootfs as root without new namespaces, mapping or
// limits. Requires CAP_SYS_CHROOT.
func (l *Launcher) Chroot(ctx context.Context, rootfs string, args []string) (int, error) {
	if len(args) == 0 {
		return ExitFailure, ErrEmptyCommand
	}
	if rootfs == "" {
		return ExitFailure, ErrEmptyRootfs
	}
	root, err := openRoot(rootfs)
	if err != nil {
		return ExitFailure, err
	}
	defer root.Close()

	p := &Process{logger: l.logger()}
	r := &forkexec.Runner{
		Args:    args,
		Env:     os.Environ(),
		RootDir: root.Fd(),
		MapFunc: func(pid int) error {
			p.Pid = pid
			p.transition(StateCreated)
			return nil
		},
	}
	return l.run(ctx, r, p)
}

// attach applies lim to pid, failures are only logged
func (l *Launcher) attach(pid int, lim cgroup.Limits) *cgroup.V2 {
	if lim.IsZero() {
		return nil
	}
	logger := l.logger()
	if l.Limiter == nil {
		logger.Warn("no resource limiter, running unconstrained", zap.Int("pid", pid), zap.Stringer("limits", lim))
		return nil
	}
	cg, err := l.Limiter.Attach(pid, lim)
	if err != nil {
		logger.Warn("attach resource limits failed, running unconstrained",
			zap.Int("pid", pid), zap.Stringer("limits", lim), zap.Error(err))
		return nil
	}
	logger.Debug("resource limits attached", zap.Int("pid", pid), zap.String("cgroup", cg.Path()))
	return cg
}

// run starts the runner and waits for the child
func (l *Launcher) run(ctx context.Context, r *forkexec.Runner, p *Process) (int, error) {
	logger := l.logger()

	pid, err := r.Start()
	var childErr forkexec.ChildError
	switch {
	case errors.As(err, &childErr) && pid > 0:
		// the child exits with its own status, collect it below
		logger.Error("container setup failed",
			zap.Int("pid", pid),
			zap.Stringer("location", childErr.Location),
			zap.Int("index", childErr.Index),
			zap.Error(childErr.Err))
	case err != nil:
		return ExitFailure, fmt.Errorf("container: start: %w", err)
	}
	p.Pid = pid

	code, err := wait(ctx, pid)
	if err != nil {
		return code, err
	}
	p.transition(StateExited)
	logger.Debug("process exited", zap.Int("pid", pid), zap.Int("code", code))
	return code, nil
}

func openRoot(rootfs string) (*os.File, error) {
	root, err := os.OpenFile(rootfs, os.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, fmt.Errorf("container: open rootfs: %w", err)
	}
	return root, nil
}

func (s *RunSpec) env() []string {
	if s.Env == nil {
		return os.Environ()
	}
	return s.Env
}
