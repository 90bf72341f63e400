package logger

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Package logger is a thin wrapper around logrus' standard logger.
//
// It is designed to be imported as `log`, so the transport core, channel
// bindings and the CLI share a single backend configured once via
// pkg/bootstrap.

type Fields = log.Fields
type Entry = log.Entry
type Logger = log.Logger
type Level = log.Level
type Formatter = log.Formatter
type Hook = log.Hook
type JSONFormatter = log.JSONFormatter
type TextFormatter = log.TextFormatter

var AllLevels = log.AllLevels

const (
	ErrorLevel = log.ErrorLevel
	WarnLevel  = log.WarnLevel
	InfoLevel  = log.InfoLevel
	DebugLevel = log.DebugLevel
	TraceLevel = log.TraceLevel
)

// ComponentKey is the field naming the emitting package.
const ComponentKey = "component"

func StandardLogger() *Logger { return log.StandardLogger() }
func New() *Logger            { return log.New() }

func SetFormatter(f Formatter)               { log.SetFormatter(f) }
func SetLevel(level Level)                   { log.SetLevel(level) }
func ParseLevel(level string) (Level, error) { return log.ParseLevel(level) }
func SetOutput(out io.Writer)                { log.SetOutput(out) }

func WithField(key string, value any) *Entry { return log.WithField(key, value) }
func WithFields(fields Fields) *Entry        { return log.WithFields(fields) }
func WithError(err error) *Entry             { return log.WithError(err) }

// Component returns an entry on the standard logger tagged with name.
func Component(name string) *Entry {
	return log.WithField(ComponentKey, name)
}

// Discard returns an entry whose output is dropped, for tests and for
// callers that want a silent transport.
func Discard() *Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

// WithTrace binds ctx and adds "trace_id" when OpenTelemetry span context is present.
func WithTrace(ctx context.Context) *Entry {
	return TraceEntry(log.NewEntry(log.StandardLogger()), ctx)
}

// TraceEntry is WithTrace on an existing entry, keeping its logger and fields.
func TraceEntry(e *Entry, ctx context.Context) *Entry {
	if ctx == nil {
		return e
	}
	e = e.WithContext(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e = e.WithField("trace_id", sc.TraceID().String())
	}
	return e
}

func Debugf(format string, args ...any) { log.Debugf(format, args...) }
func Infof(format string, args ...any)  { log.Infof(format, args...) }
func Warnf(format string, args ...any)  { log.Warnf(format, args...) }
func Errorf(format string, args ...any) { log.Errorf(format, args...) }
func Fatalf(format string, args ...any) { log.Fatalf(format, args...) }
func Info(args ...any)                  { log.Info(args...) }
func Warn(args ...any)                  { log.Warn(args...) }
func Fatal(args ...any)                 { log.Fatal(args...) }
