package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemTruncatesToSeconds(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, 0, now.Nanosecond())
	assert.Equal(t, time.UTC, now.Location())
}

func TestManualAdvance(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	m := NewManual(start)
	assert.Equal(t, start, m.Now())

	got := m.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), got)
	assert.Equal(t, got, m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}
