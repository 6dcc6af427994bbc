package timefmt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/traceline/traceline/internal/timefmt"
)

func TestFormat_UTC(t *testing.T) {
	ts := time.Date(2026, 6, 15, 10, 30, 45, 123000000, time.UTC)
	assert.Equal(t, "2026-06-15T10:30:45.123Z", timefmt.Format(ts))
}

func TestFormat_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	ts := time.Date(2026, 6, 15, 19, 30, 45, 456000000, loc)
	assert.Equal(t, "2026-06-15T10:30:45.456Z", timefmt.Format(ts))
}

func TestFormat_ZeroTime(t *testing.T) {
	assert.Equal(t, "0001-01-01T00:00:00.000Z", timefmt.Format(time.Time{}))
}

func TestClock(t *testing.T) {
	ts := time.Date(2026, 6, 15, 10, 30, 45, 0, time.Local)
	assert.Equal(t, "10:30:45", timefmt.Clock(ts))
}
