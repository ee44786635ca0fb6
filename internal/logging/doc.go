// Package logging builds the slog loggers used by the daemon and CLI.
// The console handler renders single-line records for interactive use;
// the JSON handler feeds log files and collectors.
package logging
