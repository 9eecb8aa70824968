// Package logging defines the minimal structured-logging interface used by
// the vault, session, and auth layers. The concrete implementation wraps
// slog; swapping in another backend only requires satisfying Logger.
package logging

import "context"

// Logger is a context-aware, structured logger. Variadic args are
// interpreted as key-value pairs:
//
//	log.Warn(ctx, "session restore failed", "username", name, "error", err)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given
	// key-value pairs.
	With(args ...any) Logger
}
