package utils

import "time"

// NowUTC returns the current time in UTC.
// Centralized so components agree on timestamp handling and tests can
// compare against a single clock convention.
func NowUTC() time.Time {
	return time.Now().UTC()
}
