package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/minictl/minictl/config"
)

func TestParseRun(t *testing.T) {
	c := config.Default()
	spec, err := parseRun(c, []string{
		"--hostname=box", "--mem-limit=256M", "--cpu-limit", "50", "--tmpfs=/tmp", "--tmpfs", "/run",
		"/srv/rootfs", "/bin/ls", "-l", "--hostname=not-a-flag",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if spec.Rootfs != "/srv/rootfs" || spec.Hostname != "box" {
		t.Errorf("unexpected spec %+v", spec)
	}
	if spec.MemLimit != "268435456" || spec.CPULimit != "50" {
		t.Errorf("unexpected limits %q %q", spec.MemLimit, spec.CPULimit)
	}
	if !reflect.DeepEqual(spec.Args, []string{"/bin/ls", "-l", "--hostname=not-a-flag"}) {
		t.Errorf("args = %v", spec.Args)
	}
	if !reflect.DeepEqual(spec.Tmpfs, []string{"/tmp", "/run"}) {
		t.Errorf("tmpfs = %v", spec.Tmpfs)
	}
	if spec.Seccomp {
		t.Error("seccomp should be off by default")
	}
}

func TestParseRunSeccompFromConfig(t *testing.T) {
	c := config.Default()
	c.Seccomp = true
	spec, err := parseRun(c, []string{"/", "sh"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if !spec.Seccomp || spec.MemLimit != "" || spec.CPULimit != "" {
		t.Errorf("unexpected spec %+v", spec)
	}
}

func TestParseRunUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"/rootfs"},
		{"--mem-limit=10X", "/", "sh"},
		{"--cpu-limit=half", "/", "sh"},
		{"--unknown", "/", "sh"},
	} {
		if _, err := parseRun(config.Default(), args, &bytes.Buffer{}); !errors.Is(err, errUsage) {
			t.Errorf("parseRun(%v) = %v, want usage error", args, err)
		}
	}
}

func TestParseRunImage(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "alpine", "rootfs"), 0755); err != nil {
		t.Fatal(err)
	}
	cfg := "args=-c echo hello\nhostname=img\nmem_limit=64M\ncpu_limit=20\n"
	if err := os.WriteFile(filepath.Join(dir, "alpine", "config.txt"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	c := config.Default()
	c.ImagesDir = dir

	spec, err := parseRunImage(c, []string{"alpine", "--cpu-limit=80"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(spec.Args, []string{"/bin/sh", "-c", "echo", "hello"}) {
		t.Errorf("args = %v", spec.Args)
	}
	if spec.Hostname != "img" || spec.MemLimit != "64M" || spec.CPULimit != "80" {
		t.Errorf("unexpected spec %+v", spec)
	}
	if spec.Rootfs != filepath.Join(dir, "alpine", "rootfs") {
		t.Errorf("rootfs = %s", spec.Rootfs)
	}

	if _, err := parseRunImage(c, []string{"alpine", "extra"}, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("expected usage error, got %v", err)
	}
	if _, err := parseRunImage(c, []string{"missing"}, &bytes.Buffer{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist, got %v", err)
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		args []string
		code int
	}{
		{nil, 1},
		{[]string{"--help"}, 0},
		{[]string{"unknown"}, 1},
		{[]string{"chroot", "/"}, 1},
		{[]string{"--log-level=loud", "run", "/", "sh"}, 1},
		{[]string{"run", "--help"}, 0},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if code := run(tt.args, &out); code != tt.code {
			t.Errorf("run(%v) = %d, want %d", tt.args, code, tt.code)
		}
		if tt.code != 0 && !strings.Contains(out.String(), "Usage") && !strings.Contains(out.String(), "minictl:") {
			t.Errorf("run(%v) printed %q", tt.args, out.String())
		}
	}
}

func TestRunInterrupt(t *testing.T) {
	dir := t.TempDir()
	started := filepath.Join(dir, "started")
	done := make(chan int, 1)
	go func() {
		var out bytes.Buffer
		done <- run([]string{"--log-level=error", "run", "/", "/bin/sh", "-c", "touch " + started + "; sleep 60"}, &out)
	}()

	// the handler is installed before the container starts
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(started); err == nil {
			break
		}
		select {
		case code := <-done:
			t.Skipf("container did not start: exit %d", code)
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("container did not start in time")
		}
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-done:
		if code != 137 {
			t.Fatalf("run = %d, want 137", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("interrupt did not stop the container")
	}
}
