// Package recorder implements single-use microphone recording sessions.
// A session captures fixed-size chunks on a background goroutine, reports
// progress without blocking capture, and finalizes exactly once whether it is
// stopped by the caller, by sustained silence, by a duration cap, or by the
// device going away.
package recorder
