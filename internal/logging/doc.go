// Package logging configures structured slog output for indexq.
//
// The long-running service logs JSON to a size-rotated file under
// ~/.indexq/logs/ and mirrors it to stderr. One-shot CLI commands only log
// to stderr, and only at warn level unless --debug is given.
package logging
