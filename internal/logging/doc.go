// Package logging provides structured logging for the rfstick tool.
//
// It wraps Go's standard log/slog package so every log entry carries the
// service name and version, with level-based filtering and a choice of
// text or JSON output.
//
// # Configuration
//
// Logging is configured via the LoggingConfig section in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connected", "address", addr)
//	logger.Error("request failed", "error", err)
package logging
