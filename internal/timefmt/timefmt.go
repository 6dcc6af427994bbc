// Package timefmt centralizes the timestamp renderings used across
// Traceline: a millisecond-precision ISO-8601 form for serialized data
// and a short clock form for the chat screen.
package timefmt

import "time"

// ISO8601 is the format used for serialized timestamps.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Format renders t in UTC ISO-8601 with millisecond precision.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// Clock renders t as a local wall-clock time for transcript display.
func Clock(t time.Time) string {
	return t.Local().Format("15:04:05")
}
