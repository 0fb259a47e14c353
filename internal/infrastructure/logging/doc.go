// Package logging provides structured logging for the forwarder.
//
// This package wraps Go's standard log/slog package and writes every entry
// to two sinks: the console and an append-only log file rotated by size.
//
// # Features
//
//   - Text output by default, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Rotating file sink (gopkg.in/natefinch/lumberjack.v2)
//
// # Configuration
//
//	"logging": {
//	  "level": "info",
//	  "format": "text",
//	  "output": "stdout",
//	  "file": {"path": "mqtt_forwarder.log", "max_size": 50, "max_backups": 5}
//	}
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("forwarded", "sn", env.SN, "topic", topic)
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
