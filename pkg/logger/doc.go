// Package logger provides a structured logging interface for igmonitor.
//
// It wraps zerolog behind the Logger interface. Console output is colored
// and written to stderr; a log file, when configured, receives JSON lines.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	logger.Info("monitor started")
//	logger.WithField("subject", "alice").Info("collecting followers")
//
// Components take a Logger at construction and log with the shared field
// names used by the helpers in this package: subject, kind, run_token,
// collected and status.
//
// Tests use NewTestLogger to capture entries or NewNopLogger to discard them.
package logger
