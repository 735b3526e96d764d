// Command minictl runs a command in a minimal container.
//
//	minictl [global options] chroot <rootfs> <cmd> [args...]
//	minictl [global options] run [options] <rootfs> <cmd> [args...]
//	minictl [global options] run-image <name> [options]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/minictl/minictl/config"
	"github.com/minictl/minictl/container"
	"github.com/minictl/minictl/pkg/cgroup"
	"github.com/minictl/minictl/pkg/logger"
)

// terminateSignals kill the running container
var terminateSignals = []os.Signal{os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP}

// errUsage makes the command print its usage and exit 1
var errUsage = errors.New("invalid usage")

// globalOptions are accepted before the sub command
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	imagesDir  string
	cgroupRoot string
}

func newGlobalFlagSet(o *globalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("minictl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&o.configPath, "config", "", "runtime config file (YAML)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "", "log format: console or json")
	fs.StringVar(&o.imagesDir, "images-dir", "", "directory holding images for run-image")
	fs.StringVar(&o.cgroupRoot, "cgroup-root", "", "mount point of the cgroup v2 hierarchy")
	return fs
}

// apply overrides the config with the flags given on the command line
func (o *globalOptions) apply(fs *pflag.FlagSet, c *config.Config) {
	if fs.Changed("log-level") {
		c.Log.Level = o.logLevel
	}
	if fs.Changed("log-format") {
		c.Log.Format = o.logFormat
	}
	if fs.Changed("images-dir") {
		c.ImagesDir = o.imagesDir
	}
	if fs.Changed("cgroup-root") {
		c.Cgroup.Root = o.cgroupRoot
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	var o globalOptions
	fs := newGlobalFlagSet(&o)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return container.ExitFailure
	}
	if fs.NArg() == 0 {
		printUsage(stderr, fs)
		return container.ExitFailure
	}

	c, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		return container.ExitFailure
	}
	o.apply(fs, &c)
	if err := c.Validate(); err != nil {
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		return container.ExitFailure
	}

	log, err := logger.New(logger.Config{Level: c.Log.Level, Format: c.Log.Format})
	if err != nil {
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		return container.ExitFailure
	}
	defer log.Sync()

	// the container is the init of its pid namespace and ignores signals it
	// has no handler for, stop it through the context instead
	ctx, stop := signal.NotifyContext(context.Background(), terminateSignals...)
	defer stop()

	h := cgroup.NewHierarchy(c.Cgroup.Root, c.Cgroup.Prefix)
	l := container.NewLauncher(cgroup.NewLimiter(h), log)

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	var code int
	switch cmd {
	case "chroot":
		code, err = cmdChroot(ctx, l, cmdArgs)
	case "run":
		code, err = cmdRun(ctx, l, c, cmdArgs, stderr)
	case "run-image":
		code, err = cmdRunImage(ctx, l, c, cmdArgs, stderr)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		printUsage(stderr, fs)
		return container.ExitFailure
	case err != nil:
		log.Error("launch failed", zap.String("command", cmd), zap.Error(err))
	}
	return code
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: minictl [options] <command> [args...]

Commands:
  chroot <rootfs> <cmd> [args...]        run cmd with rootfs as root
  run [run options] <rootfs> <cmd> [args...]
                                         run cmd in new namespaces
  run-image <name> [run options]         run the image <images-dir>/<name>

Options:
%s
Run options:
%s`, fs.FlagUsages(), newRunFlagSet(&runOptions{}, false).FlagUsages())
}
