package util

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// ParseDate parses the date forms the source system hands out: a bare day
// (2024-03-01), a floating datetime (2024-03-01T09:30:00) interpreted in loc,
// or a full RFC3339 timestamp.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// IsDateOnly reports whether t sits exactly on midnight.
func IsDateOnly(t time.Time) bool {
	h, m, sec := t.Clock()
	return h == 0 && m == 0 && sec == 0 && t.Nanosecond() == 0
}

// FormatDate renders t as a bare day when it has no time of day, otherwise as
// an RFC3339 timestamp in UTC.
func FormatDate(t time.Time) string {
	if IsDateOnly(t) {
		return t.Format(dateLayout)
	}
	return t.UTC().Format(time.RFC3339)
}

// Timestamp returns now in loc, truncated to the second. Used for watermarks.
func Timestamp(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Truncate(time.Second)
}
