package pgpme

import "log/slog"

// Logger provides structured logging for contexts and engines.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. It is the default.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// slogLogger wraps *slog.Logger to satisfy the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger.
func NewSlogLogger(l *slog.Logger) Logger { return &slogLogger{l: l} }

func (a *slogLogger) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogLogger) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogLogger) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogLogger) Error(msg string, args ...any) { a.l.Error(msg, args...) }
