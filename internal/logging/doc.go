// Package logging builds slog loggers with the console and JSON handlers
// shared by the CLI and the pipeline, plus attribute helpers and
// context-derived field extraction.
package logging
