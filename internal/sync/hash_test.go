package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSizeHash(t *testing.T) {
	t.Parallel()

	size := int64(1024)
	other := int64(2048)

	t.Run("stable", func(t *testing.T) {
		t.Parallel()
		a := ComputeSizeHash("report.pdf", &size, "application/pdf")
		b := ComputeSizeHash("report.pdf", &size, "application/pdf")
		assert.Equal(t, a, b)
		assert.Len(t, a, 32)
	})

	t.Run("name is case insensitive", func(t *testing.T) {
		t.Parallel()
		a := ComputeSizeHash("Report.PDF", &size, "application/pdf")
		b := ComputeSizeHash("report.pdf", &size, "application/pdf")
		assert.Equal(t, a, b)
	})

	t.Run("size changes the hash", func(t *testing.T) {
		t.Parallel()
		a := ComputeSizeHash("report.pdf", &size, "application/pdf")
		b := ComputeSizeHash("report.pdf", &other, "application/pdf")
		assert.NotEqual(t, a, b)
	})

	t.Run("mime changes the hash", func(t *testing.T) {
		t.Parallel()
		a := ComputeSizeHash("report.pdf", &size, "application/pdf")
		b := ComputeSizeHash("report.pdf", &size, "text/plain")
		assert.NotEqual(t, a, b)
	})

	t.Run("nil size yields empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ComputeSizeHash("report.pdf", nil, "application/pdf"))
	})

	t.Run("empty name yields empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ComputeSizeHash("", &size, "application/pdf"))
	})
}
