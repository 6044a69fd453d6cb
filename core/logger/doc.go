// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments
// (development vs production) and two encodings.
//
// # Run Awareness
//
// Every numbering, import and recalculation run carries a run id. The WithRun
// helper attaches the run id and the optional control tag to a child logger so
// that all log lines of a run can be correlated, including the ones written by
// the progress reporter and the control board.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Format: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info", Format: "console"})
//	log.Info("Import started")
//
//	l := logger.WithRun(log, run.ID(), "BATCH-2024-01")
//	l.Warn("Chunk lookup failed", zap.Error(err))
package logger
