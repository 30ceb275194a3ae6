// Package logging provides structured logging for the observatory gateway.
//
// It wraps log/slog with JSON or text output, UTC timestamps and default
// service/version fields. The level can be changed while running; main
// re-reads it from config.yaml on SIGHUP.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("devnet").Info("device announced", "device", "ccd0")
//
// Never log session tokens or passwords.
package logging
