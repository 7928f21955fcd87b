// Package log provides protocol event logging for the framelink
// transport layer.
//
// Events capture frames crossing the wire, connection state changes and
// transport errors. Applications receive events through the Logger
// interface; the package ships a CBOR file logger for durable capture,
// an slog adapter for console output, a fan-out multi logger and a
// filtering reader for captured files.
//
// Logging is optional everywhere: a nil Logger or NoopLogger disables
// it with no overhead on the hot path beyond a nil check.
package log
