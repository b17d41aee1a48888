package utils

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMemUsage(t *testing.T) {
	mu := GetMemUsage()
	assert.GreaterOrEqual(t, mu.TotalAlloc, mu.Alloc)
	assert.Contains(t, mu.String(), "MiB")
	assert.Equal(t, slog.KindGroup, mu.LogValue().Kind())
	assert.Len(t, mu.LogValue().Group(), 3)
}
