package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oneclouds/oneclouds/internal/catalog"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
		{"terabytes", 1099511627776, "1.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatSizePtr(t *testing.T) {
	assert.Equal(t, "-", formatSizePtr(nil))
	assert.Equal(t, "1.5 KB", formatSizePtr(catalog.Int64Ptr(1536)))
}

func TestFormatNano(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	diffYear := time.Date(2019, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("same year", func(t *testing.T) {
		result := formatNano(sameYear.UnixNano())
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatNano(diffYear.UnixNano())
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2019")
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.Equal(t, "-", formatNanoPtr(nil))
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := [][]string{
		{"file.txt", "1.2 MB", "Jan 15 10:30"},
		{"folder-with-long-name/", "0 B", "Feb  1 09:00"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))

	// Columns align on the widest cell.
	assert.Equal(t, strings.Index(lines[1], "1.2 MB"), strings.Index(lines[2], "0 B"))

	// No trailing whitespace on any line.
	for _, line := range lines {
		assert.Equal(t, line, strings.TrimRight(line, " "))
	}
}
