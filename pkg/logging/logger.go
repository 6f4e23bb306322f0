// Package logging provides structured logging shared by the package engine,
// daemon, security core, and license pipeline.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context-carried logging metadata.
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SessionIDKey ContextKey = "session_id"
	ComponentKey ContextKey = "component"
)

// Logger wraps logrus.Logger with OMG-specific structured helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the given component ("engine", "daemon",
// "security", "license", ...).
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a Logger using OMG_LOG_LEVEL/OMG_LOG_FORMAT, defaulting
// to "info"/"json" when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("OMG_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("OMG_LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// SetOutput redirects log output (tests redirect to a buffer).
func (l *Logger) SetOutput(w io.Writer) { l.Logger.SetOutput(w) }

// WithContext returns an entry carrying the component plus any trace/session
// id found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	return entry
}

// NewTraceID generates a fresh trace id.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace id from ctx, or "".
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithSessionID attaches a session id to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// LogSecurityEvent logs a security-relevant event at warning level, used by
// the Security Core for PGP/SLSA/policy failures.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]interface{}) {
	fields := logrus.Fields{"event_type": eventType, "severity": "security"}
	for k, v := range details {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Warn("security event")
}

// LogAudit logs a mirror of an audit-log append at info level so operators
// can follow the tamper-evident log from the standard log stream too.
func (l *Logger) LogAudit(ctx context.Context, eventType, resource, description string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"event_type":  eventType,
		"resource":    resource,
		"description": description,
		"audit":       true,
	}).Info("audit entry appended")
}

// LogTransaction logs package-engine transaction phase transitions.
func (l *Logger) LogTransaction(ctx context.Context, phase, packageName string, percent int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"phase":   phase,
		"package": packageName,
		"percent": percent,
	}).Debug("transaction progress")
}

// LogRequest logs a daemon IPC request/response cycle.
func (l *Logger) LogRequest(ctx context.Context, kind string, requestID uint64, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"request_kind": kind,
		"request_id":   requestID,
		"duration_ms":  duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("daemon request failed")
		return
	}
	entry.Debug("daemon request handled")
}

// LogPerformance logs an arbitrary performance/timing measurement.
func (l *Logger) LogPerformance(ctx context.Context, operation string, duration time.Duration, extra map[string]interface{}) {
	fields := logrus.Fields{"operation": operation, "duration_ms": duration.Milliseconds()}
	for k, v := range extra {
		fields[k] = v
	}
	l.WithContext(ctx).WithFields(fields).Info("performance")
}

// Default is a process-wide logger lazily initialized on first use (§9:
// "Global state ... initialized lazily on first use and has no teardown
// routine").
var defaultLogger *Logger

// Default returns the process-wide logger, initializing it from the
// environment on first call.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewFromEnv("omg")
	}
	return defaultLogger
}

// SetDefault overrides the process-wide logger (used by tests and by
// cmd/omgd to inject the component name).
func SetDefault(l *Logger) { defaultLogger = l }
