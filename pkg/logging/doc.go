// Package logging provides the gateway's process-wide structured logger:
// a slog.TextHandler-backed sink with Debug/Info/Warn/Error helpers keyed
// by subsystem name, plus an Audit helper for security-sensitive events.
package logging
