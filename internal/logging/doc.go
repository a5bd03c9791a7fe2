// Package logging configures structured logging for the verification
// workflow core.
//
// Loggers are standard log/slog instances. The package provides a console
// handler for interactive use, a JSON handler for machine consumption, attr
// helpers so call sites avoid raw key strings, and standardized field keys
// shared across components.
package logging
