package http

import "time"

// ParseTime parses an RFC3339 timestamp from a query parameter. Empty or
// malformed input returns false; validation upstream decides whether that
// is an error or an open range bound.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
