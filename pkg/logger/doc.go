// Package logger provides the structured logging interface used across
// thingmirror.
//
// It wraps zerolog with a small Logger interface so packages can attach
// fields (worker, index, attempt, run_id) without depending on zerolog
// directly. Console output is coloured only when stderr is a terminal; an
// optional log file receives the same events as JSON.
//
// Basic usage:
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.InfoWithFields("checkpoint saved", map[string]interface{}{
//	    "index": uint64(4200),
//	})
//
// Tests use NewTestLogger to capture messages or NewNopLogger to drop them.
package logger
