package loom

import (
	"context"
	"log"
	"os"
)

// Logger provides the structured logging hook diagnostics are emitted
// through. Nothing in this package ever returns a diagnostic as an error;
// overwritten successors and terminal dead-ends are reported here instead.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// stdLogger is the default Logger, backed by the standard library's log
// package. It is deliberately minimal: node authors who want structured
// output wire in their own Logger via WithLogger/WithNodeLogger.
type stdLogger struct {
	l *log.Logger
}

// NewStdLogger returns a Logger that writes to stderr via the standard
// library's log package.
func NewStdLogger() Logger {
	return &stdLogger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (s *stdLogger) log(level, msg string, keysAndValues ...any) {
	args := append([]any{level, msg}, keysAndValues...)
	s.l.Println(args...)
}

func (s *stdLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	s.log("DEBUG", msg, keysAndValues...)
}

func (s *stdLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	s.log("INFO", msg, keysAndValues...)
}

func (s *stdLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	s.log("WARN", msg, keysAndValues...)
}

func (s *stdLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	s.log("ERROR", msg, keysAndValues...)
}

var defaultLogger Logger = NewStdLogger()
