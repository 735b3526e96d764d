package cgroup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/minictl/minictl/pkg/size"
)

func fakeHierarchy(t *testing.T) *Hierarchy {
	t.Helper()
	return &Hierarchy{
		Root:   t.TempDir(),
		Prefix: DefaultPrefix,
		Type:   TypeV2,
	}
}

func readString(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestLimiter_Attach(t *testing.T) {
	h := fakeHierarchy(t)
	l := NewLimiter(h)
	cg, err := l.Attach(1234, Limits{CPUPercent: 50, Memory: 256 << 20})
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(h.Root, "minictl", "1234"); cg.Path() != want {
		t.Fatalf("scope path = %s, want %s", cg.Path(), want)
	}
	if got := readString(t, filepath.Join(cg.Path(), "cpu.max")); got != "50000 100000" {
		t.Errorf("cpu.max = %q", got)
	}
	if got := readString(t, filepath.Join(cg.Path(), "memory.max")); got != "268435456" {
		t.Errorf("memory.max = %q", got)
	}
	if got := readString(t, filepath.Join(cg.Path(), "cgroup.procs")); got != "1234" {
		t.Errorf("cgroup.procs = %q", got)
	}
	for _, dir := range []string{h.Root, h.Base()} {
		got := strings.Fields(readString(t, filepath.Join(dir, "cgroup.subtree_control")))
		if len(got) != 2 || got[0] != "+cpu" || got[1] != "+memory" {
			t.Errorf("%s subtree_control = %v", dir, got)
		}
	}
}

func TestLimiter_AttachMemoryOnly(t *testing.T) {
	h := fakeHierarchy(t)
	cg, err := NewLimiter(h).Attach(77, Limits{Memory: size.Size(1 << 30)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(cg.Path(), "cpu.max")); !os.IsNotExist(err) {
		t.Errorf("cpu.max written without a cpu limit: %v", err)
	}
	if v, err := cg.ReadUint("memory.max"); err != nil || v != 1<<30 {
		t.Errorf("memory.max = %d, %v", v, err)
	}
}

func TestLimiter_ControllersAlreadyEnabled(t *testing.T) {
	h := fakeHierarchy(t)
	if err := os.WriteFile(filepath.Join(h.Root, "cgroup.subtree_control"), []byte("cpuset cpu io memory pids\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLimiter(h).Attach(5, Limits{CPUPercent: 10, Memory: 4096}); err != nil {
		t.Fatal(err)
	}
	// untouched when nothing is missing
	if got := readString(t, filepath.Join(h.Root, "cgroup.subtree_control")); got != "cpuset cpu io memory pids\n" {
		t.Errorf("root subtree_control rewritten: %q", got)
	}
}

func TestLimiter_ScopeNeverShared(t *testing.T) {
	l := NewLimiter(fakeHierarchy(t))
	if _, err := l.Attach(99, Limits{CPUPercent: 20}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Attach(99, Limits{CPUPercent: 20}); !errors.Is(err, os.ErrExist) {
		t.Fatalf("second attach for the same pid: %v, want ErrExist", err)
	}
}

func TestLimiter_ConcurrentScopes(t *testing.T) {
	l := NewLimiter(fakeHierarchy(t))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = make(map[string]bool)
	)
	for pid := 100; pid < 116; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			cg, err := l.Attach(pid, Limits{CPUPercent: 25})
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			paths[cg.Path()] = true
			mu.Unlock()
		}(pid)
	}
	wg.Wait()
	if len(paths) != 16 {
		t.Fatalf("got %d distinct scopes, want 16", len(paths))
	}
}

func TestLimiter_InvalidCPUCreatesNothing(t *testing.T) {
	h := fakeHierarchy(t)
	if _, err := NewLimiter(h).Attach(3, Limits{CPUPercent: 101}); !errors.Is(err, ErrInvalidCPU) {
		t.Fatalf("error = %v, want ErrInvalidCPU", err)
	}
	if _, err := os.Stat(h.Base()); !os.IsNotExist(err) {
		t.Fatalf("base directory created for a rejected limit: %v", err)
	}
}

func TestLimiter_RequiresV2(t *testing.T) {
	h := fakeHierarchy(t)
	h.Type = TypeV1
	if _, err := NewLimiter(h).Attach(3, Limits{Memory: 4096}); !errors.Is(err, ErrNotV2) {
		t.Fatalf("error = %v, want ErrNotV2", err)
	}
}

func TestV2_Destroy(t *testing.T) {
	h := fakeHierarchy(t)
	cg, err := h.NewScope(11)
	if err != nil {
		t.Fatal(err)
	}
	if err := cg.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cg.Path()); !os.IsNotExist(err) {
		t.Fatalf("scope still exists: %v", err)
	}
}

func TestLimiter_System(t *testing.T) {
	// ensure root privilege when testing
	if os.Getuid() != 0 {
		t.Skip("no root privilege")
	}
	h := NewHierarchy("", "minictl-test")
	if h.Type != TypeV2 {
		t.Skip("cgroup v2 not mounted")
	}
	// the test process itself cannot be moved, use a scope without procs
	cg, err := h.NewScope(os.Getpid(), CPU, Memory)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cg.Destroy()
		os.Remove(h.Base())
	})
	quota, period, _ := CPUBandwidth(50)
	if err := cg.SetCPUBandwidth(quota, period); err != nil {
		t.Fatal(err)
	}
	if err := cg.SetMemoryLimit(64 << 20); err != nil {
		t.Fatal(err)
	}
	if v, err := cg.ReadUint("memory.max"); err != nil || v != 64<<20 {
		t.Fatalf("memory.max = %d, %v", v, err)
	}
}
