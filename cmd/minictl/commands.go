package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/minictl/minictl/config"
	"github.com/minictl/minictl/container"
	"github.com/minictl/minictl/image"
	"github.com/minictl/minictl/pkg/size"
)

// runOptions are the flags of run and run-image
type runOptions struct {
	hostname string
	memLimit size.Size
	cpuLimit int
	tmpfs    []string
	seccomp  bool
}

// newRunFlagSet creates the flags of run. run stops at the rootfs so the
// command keeps its own flags, run-image accepts flags after the name.
func newRunFlagSet(o *runOptions, interspersed bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetInterspersed(interspersed)
	fs.StringVar(&o.hostname, "hostname", "", "hostname inside the container")
	fs.Var(&o.memLimit, "mem-limit", "memory limit, e.g. 256M or 1G")
	fs.IntVar(&o.cpuLimit, "cpu-limit", 0, "cpu limit in percent of one cpu (1-100)")
	fs.StringArrayVar(&o.tmpfs, "tmpfs", nil, "mount a tmpfs at this path inside the container (repeatable)")
	fs.BoolVar(&o.seccomp, "seccomp", false, "deny dangerous syscalls with a seccomp filter")
	return fs
}

// override converts the flags that were set into image overrides
func (o *runOptions) override(fs *pflag.FlagSet) image.Override {
	ov := image.Override{
		Hostname: o.hostname,
		Tmpfs:    o.tmpfs,
		Seccomp:  o.seccomp,
	}
	if fs.Changed("mem-limit") {
		ov.MemLimit = strconv.FormatUint(o.memLimit.Byte(), 10)
	}
	if fs.Changed("cpu-limit") {
		ov.CPULimit = strconv.Itoa(o.cpuLimit)
	}
	return ov
}

func cmdChroot(ctx context.Context, l *container.Launcher, args []string) (int, error) {
	if len(args) < 2 {
		return container.ExitFailure, fmt.Errorf("%w: chroot needs <rootfs> <cmd>", errUsage)
	}
	return l.Chroot(ctx, args[0], args[1:])
}

// parseRun builds the RunSpec of run from its arguments
func parseRun(c config.Config, args []string, stderr io.Writer) (container.RunSpec, error) {
	var o runOptions
	fs := newRunFlagSet(&o, false)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return container.RunSpec{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() < 2 {
		return container.RunSpec{}, fmt.Errorf("%w: run needs <rootfs> <cmd>", errUsage)
	}
	ov := o.override(fs)
	return container.RunSpec{
		Rootfs:   fs.Arg(0),
		Args:     fs.Args()[1:],
		Hostname: ov.Hostname,
		MemLimit: ov.MemLimit,
		CPULimit: ov.CPULimit,
		Tmpfs:    ov.Tmpfs,
		Seccomp:  ov.Seccomp || c.Seccomp,
	}, nil
}

func cmdRun(ctx context.Context, l *container.Launcher, c config.Config, args []string, stderr io.Writer) (int, error) {
	spec, err := parseRun(c, args, stderr)
	if err != nil {
		return container.ExitFailure, err
	}
	return l.Launch(ctx, spec)
}

// parseRunImage loads the image and merges the flags over its config
func parseRunImage(c config.Config, args []string, stderr io.Writer) (container.RunSpec, error) {
	var o runOptions
	fs := newRunFlagSet(&o, true)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return container.RunSpec{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return container.RunSpec{}, fmt.Errorf("%w: run-image needs exactly one <name>", errUsage)
	}
	img, err := image.Load(c.ImagesDir, fs.Arg(0))
	if err != nil {
		return container.RunSpec{}, err
	}
	spec := img.RunSpec(o.override(fs))
	spec.Seccomp = spec.Seccomp || c.Seccomp
	return spec, nil
}

func cmdRunImage(ctx context.Context, l *container.Launcher, c config.Config, args []string, stderr io.Writer) (int, error) {
	spec, err := parseRunImage(c, args, stderr)
	if err != nil {
		return container.ExitFailure, err
	}
	return l.Launch(ctx, spec)
}
