package util //nolint:revive // package name util hosts shared helpers for CLI output and outbound HTTP

import "time"

// FormatProcessingDuration formats a time.Duration for display, handling edge cases.
// Returns "-" for zero or negative durations, truncates to milliseconds for readability.
func FormatProcessingDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}

// JobRuntime returns finished-started, or now-started while the job runs, or 0 before it starts.
func JobRuntime(startedAt, finishedAt *time.Time, now time.Time) time.Duration {
	if startedAt == nil {
		return 0
	}
	end := now
	if finishedAt != nil {
		end = *finishedAt
	}
	return end.Sub(*startedAt)
}
