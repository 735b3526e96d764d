package image

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseConfig(t *testing.T) {
	in := "entrypoint=/bin/busybox\r\n" +
		"args=sh  -c   echo\n" +
		"# comment without separator\n" +
		"hostname = box\n" +
		"mem_limit=256M\n" +
		"cpu_limit=50\n" +
		"unknown=value\n" +
		"cpu_limit=25\n"
	c, err := ParseConfig(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Entrypoint: "/bin/busybox",
		Args:       []string{"sh", "-c", "echo"},
		Hostname:   "box",
		MemLimit:   "256M",
		CPULimit:   "25",
	}
	if !reflect.DeepEqual(c, want) {
		t.Fatalf("ParseConfig = %+v, want %+v", c, want)
	}
}

func TestParseConfigNoQuoting(t *testing.T) {
	c, err := ParseConfig(strings.NewReader("entrypoint=/bin/ls\nargs=-c \"echo hello\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-c", "\"echo", "hello\""}
	if !reflect.DeepEqual(c.Args, want) {
		t.Fatalf("Args = %q, want %q", c.Args, want)
	}
}

func TestParseConfigEmpty(t *testing.T) {
	c, err := ParseConfig(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c, Config{}) {
		t.Fatalf("expected empty config, got %+v", c)
	}
}

func makeImage(t *testing.T, name, config string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, name, "rootfs"), 0755); err != nil {
		t.Fatal(err)
	}
	if config != "" {
		if err := os.WriteFile(filepath.Join(dir, name, "config.txt"), []byte(config), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := makeImage(t, "alpine", "args=-c echo\nhostname=alp\nmem_limit=64M\n")
	img, err := Load(dir, "alpine")
	if err != nil {
		t.Fatal(err)
	}
	if img.Rootfs != filepath.Join(dir, "alpine", "rootfs") {
		t.Errorf("rootfs = %s", img.Rootfs)
	}

	s := img.RunSpec(Override{MemLimit: "128M", CPULimit: "10", Seccomp: true})
	if !reflect.DeepEqual(s.Args, []string{"/bin/sh", "-c", "echo"}) {
		t.Errorf("args = %v", s.Args)
	}
	// command line wins, file fills the rest
	if s.Hostname != "alp" || s.MemLimit != "128M" || s.CPULimit != "10" || !s.Seccomp {
		t.Errorf("unexpected spec %+v", s)
	}
}

func TestLoadNoConfig(t *testing.T) {
	dir := makeImage(t, "plain", "")
	img, err := Load(dir, "plain")
	if err != nil {
		t.Fatal(err)
	}
	s := img.RunSpec(Override{})
	if !reflect.DeepEqual(s.Args, []string{DefaultEntrypoint}) || s.Hostname != "" || s.MemLimit != "" {
		t.Errorf("unexpected spec %+v", s)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := makeImage(t, "img", "")
	for _, name := range []string{"", ".", "..", "a/b"} {
		if _, err := Load(dir, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Load(%q) = %v, want ErrInvalidName", name, err)
		}
	}
	if _, err := Load(dir, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist, got %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "broken"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken", "rootfs"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir, "broken"); err == nil {
		t.Error("expected error for rootfs file")
	}
}
