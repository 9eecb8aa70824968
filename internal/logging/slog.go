package logging

import (
	"context"
	"io"
	"log/slog"
)

// SlogLogger adapts *slog.Logger to the Logger interface.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// NewText builds a SlogLogger writing text records to w at the given level.
func NewText(w io.Writer, level slog.Level) *SlogLogger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &SlogLogger{l: slog.New(h)}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
