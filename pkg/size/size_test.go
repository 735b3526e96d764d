package size

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Size
	}{
		{"256M", 268435456},
		{"256m", 268435456},
		{"1G", 1073741824},
		{"1g", 1073741824},
		{"4k", 4096},
		{"4K", 4096},
		{"1234", 1234},
		{"0", 0},
		{"0M", 0},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"M",
		"10X",
		"10MB",
		"1 G",
		"-5",
		" 5",
		"5.5G",
		"99999999999999999999",
		"17179869184G",
	} {
		if v, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) = %d, %v, want ErrInvalid", in, v, err)
		}
	}
}

func TestSize_String(t *testing.T) {
	tests := []struct {
		s    Size
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{256 << 20, "256.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Size(%d).String() = %q, want %q", uint64(tt.s), got, tt.want)
		}
	}
}

func TestSize_FlagValue(t *testing.T) {
	var s Size
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&s, "mem", "memory")
	if err := fs.Parse([]string{"--mem=64m"}); err != nil {
		t.Fatal(err)
	}
	if s.Byte() != 64<<20 {
		t.Fatalf("got %v, want 64 MiB", s)
	}
	if err := fs.Parse([]string{"--mem=64x"}); err == nil {
		t.Fatal("expected parse error for 64x")
	}
}
