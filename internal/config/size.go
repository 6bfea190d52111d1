package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeSuffixes maps suffixes to byte multipliers, longest first so that
// "KiB" matches before "B". Decimal (SI) and binary (IEC) forms are both
// accepted; matching is case-insensitive.
var sizeSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"TIB", 1 << 40},
	{"GIB", 1 << 30},
	{"MIB", 1 << 20},
	{"KIB", 1 << 10},
	{"TB", 1_000_000_000_000},
	{"GB", 1_000_000_000},
	{"MB", 1_000_000},
	{"KB", 1_000},
	{"B", 1},
}

// ParseSize converts a human-readable size string like "100MB" or "1.5 GiB"
// to bytes. A bare number is raw bytes. Empty string and "0" return 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	upper := strings.ToUpper(s)

	for _, sf := range sizeSuffixes {
		if !strings.HasSuffix(upper, sf.suffix) {
			continue
		}

		numStr := strings.TrimSpace(s[:len(s)-len(sf.suffix)])

		n, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		if n < 0 {
			return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
		}

		return int64(n * float64(sf.multiplier)), nil
	}

	// No suffix: raw byte count.
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	return n, nil
}
