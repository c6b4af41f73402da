package timeutil

import "time"

// UTCNowISO returns the current UTC time as RFC3339 truncated to seconds,
// the timestamp format used across the vault and the index.
func UTCNowISO() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

// LocalToday returns today's date (YYYY-MM-DD) in the named timezone,
// falling back to UTC when the name does not resolve.
func LocalToday(tzName string) string {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}
