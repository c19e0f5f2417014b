// Package logging provides the structured logger used across valuecore.
//
// Logger wraps log/slog. Every entry carries service and version, and
// attributes whose key mentions a password, secret, token, cookie or
// authorization header are written as [REDACTED].
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("server started", "address", addr)
package logging
