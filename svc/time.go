package svc

import "time"

// microsNow returns the current time as microseconds since the Unix
// epoch, the resolution the directory and status documents use for
// start_time.
func microsNow() int64 {
	return time.Now().UnixMicro()
}

// formatStartTime renders a microsecond epoch timestamp for the
// healthcheck document's human-readable start_datetime field.
func formatStartTime(micros int64) string {
	return time.UnixMicro(micros).Format(time.RFC3339)
}
