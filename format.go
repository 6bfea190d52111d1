package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// sizeUnits in descending order, binary multiples.
var sizeUnits = []struct {
	limit int64
	name  string
}{
	{1 << 40, "TB"},
	{1 << 30, "GB"},
	{1 << 20, "MB"},
	{1 << 10, "KB"},
}

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	for _, u := range sizeUnits {
		if bytes >= u.limit {
			return fmt.Sprintf("%.1f %s", float64(bytes)/float64(u.limit), u.name)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// formatSizePtr formats a nullable size; folders and sizeless files show "-".
func formatSizePtr(size *int64) string {
	if size == nil {
		return "-"
	}

	return formatSize(*size)
}

// formatNano returns a compact timestamp for a Unix-nanosecond value. Times
// in the current year show the clock, older ones the year.
func formatNano(nanos int64) string {
	t := time.Unix(0, nanos)

	layout := "Jan _2  2006"
	if t.Year() == time.Now().Year() {
		layout = "Jan _2 15:04"
	}

	return t.Format(layout)
}

// formatNanoPtr formats a nullable Unix-nanosecond timestamp.
func formatNanoPtr(nanos *int64) string {
	if nanos == nil {
		return "-"
	}

	return formatNano(*nanos)
}

// printTable writes aligned columns to the given writer. headers and each
// row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := columnWidths(headers, rows)

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for col, h := range headers {
		widths[col] = len(h)
	}

	for _, row := range rows {
		for col, cell := range row {
			widths[col] = max(widths[col], len(cell))
		}
	}

	return widths
}

// printRow pads every column but the last, so lines carry no trailing
// whitespace.
func printRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder

	for col, cell := range cells {
		if col > 0 {
			b.WriteString("  ")
		}

		b.WriteString(cell)

		if col < len(cells)-1 {
			b.WriteString(strings.Repeat(" ", widths[col]-len(cell)))
		}
	}

	fmt.Fprintln(w, b.String())
}
