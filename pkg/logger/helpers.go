package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRequest logs HTTP request information
func LogRequest(l Logger, method, url string, statusCode int, duration float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration,
	}

	switch {
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.DebugWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, config map[string]interface{}) {
	l = l.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Trace(string)                                   {}
func (n nopLogger) Debug(string)                                   {}
func (n nopLogger) Info(string)                                    {}
func (n nopLogger) Warn(string)                                    {}
func (n nopLogger) Error(string)                                   {}
func (n nopLogger) WithField(string, interface{}) Logger           { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n nopLogger) WithError(error) Logger                         { return n }
func (n nopLogger) WithContext(context.Context) Logger             { return n }
func (n nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (n nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (n nopLogger) ErrorWithFields(string, map[string]interface{}) {}

func (n nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
