// Package logging assembles the structured slog loggers used across paperboy.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes attribute helpers so pipeline code tags log lines with paper
// ids, stages, and correlation ids under consistent keys. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
