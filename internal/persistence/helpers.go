package persistence

import "time"

// Timestamps are stored as unix milliseconds, zero meaning "unknown".

func storedAt(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func loadedAt(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}
