// Package logging assembles structured slog loggers and formatting helpers
// used across dictverify.
//
// It owns the console and JSON handlers, level and output plumbing, the
// standardized field keys (component, dictionary_id, volume, event_type,
// error_hint, impact), and a progress sampler that keeps long verification
// runs from flooding the log. A no-op logger is provided for tests and for
// wiring code that cannot fail.
package logging
