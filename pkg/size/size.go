// Package size parses human readable byte counts such as "256M" or "1G".
package size

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// ErrInvalid is returned for any malformed size string
var ErrInvalid = errors.New("invalid size")

// Size stores number of byte for the object. E.g. Memory.
// Maximum size is bounded by 64-bit limit
type Size uint64

// Parse reads a decimal byte count followed by an optional single unit
// letter k, m or g (case-insensitive, powers of 1024). Nothing may follow
// the unit.
func Parse(str string) (Size, error) {
	i := 0
	for i < len(str) && str[i] >= '0' && str[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w %q: no leading digits", ErrInvalid, str)
	}
	n, err := strconv.ParseUint(str[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalid, str, err)
	}

	shift := 0
	if rest := str[i:]; rest != "" {
		if len(rest) > 1 {
			return 0, fmt.Errorf("%w %q: trailing characters %q", ErrInvalid, str, rest[1:])
		}
		switch rest[0] {
		case 'k', 'K':
			shift = 10
		case 'm', 'M':
			shift = 20
		case 'g', 'G':
			shift = 30
		default:
			return 0, fmt.Errorf("%w %q: unknown unit %q", ErrInvalid, str, rest)
		}
	}
	if bits.LeadingZeros64(n) < shift {
		return 0, fmt.Errorf("%w %q: overflows 64 bits", ErrInvalid, str)
	}
	return Size(n << shift), nil
}

// String stringer interface for print
func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

// Set parse the size value from string, it makes Size a flag value
func (s *Size) Set(str string) error {
	v, err := Parse(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Type names the flag value type
func (s *Size) Type() string {
	return "size"
}

// Byte return size in bytes
func (s Size) Byte() uint64 {
	return uint64(s)
}
