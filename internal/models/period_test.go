package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2025-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, p.Year)
	assert.Equal(t, time.January, p.Month)
	assert.Equal(t, "2025-01", p.String())
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), p.End())
}

func TestParsePeriodRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "2025-1", "2025-13", "01-2025", "2025/01", "2025-01-01"} {
		_, err := ParsePeriod(raw)
		assert.Error(t, err, raw)
	}
}
