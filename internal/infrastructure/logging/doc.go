// Package logging provides structured logging for emitterctl.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level and default fields.
//
// Logs go to stderr by default: stdout is reserved for command output such
// as received messages and generated keys, so it stays pipeable.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("subscribed", "channel", "article1/")
//
// Never log channel keys in full.
package logging
