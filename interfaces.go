package respwire

import (
	"fmt"
	"log"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommand records a completed command with its round-trip duration
	RecordCommand(cmd string, duration time.Duration)

	// RecordNetworkBytes records bytes transferred; direction is "in" or "out"
	RecordNetworkBytes(direction string, bytes int64)

	// RecordFrame records one complete reply frame of the given size
	RecordFrame(bytes int64)

	// RecordError records an error event
	RecordError(errorType string)
}

// Error types reported to MetricsCollector.RecordError
const (
	ErrorTypeProtocol   = "protocol"
	ErrorTypeUsage      = "usage"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeConnection = "connection"
	ErrorTypeReply      = "reply"
)

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	l.logWithFields("DEBUG", msg, fields...)
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	l.logWithFields("INFO", msg, fields...)
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	logMsg := level + ": " + msg
	for _, field := range fields {
		logMsg += " " + field.Key + "=" + formatValue(field.Value)
	}
	log.Println(logMsg)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NopLogger returns a Logger that discards everything
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// nopMetrics is used when no collector is configured
type nopMetrics struct{}

func (nopMetrics) RecordCommand(string, time.Duration) {}
func (nopMetrics) RecordNetworkBytes(string, int64)    {}
func (nopMetrics) RecordFrame(int64)                   {}
func (nopMetrics) RecordError(string)                  {}
