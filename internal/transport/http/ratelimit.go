package http

import "time"

// frameLimiter caps inbound frames per fixed one-minute window. It is
// only touched from the connection's read loop, so no locking.
type frameLimiter struct {
	limit int
	count int
	since time.Time
}

func newFrameLimiter(limit int) *frameLimiter {
	return &frameLimiter{limit: limit}
}

// allow counts the frame and reports whether it is within the limit.
// A non-positive limit disables limiting.
func (l *frameLimiter) allow(now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	if now.Sub(l.since) >= time.Minute {
		l.since = now
		l.count = 0
	}
	l.count++
	return l.count <= l.limit
}
