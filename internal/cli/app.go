// Package cli implements the interactive terminal client for credkeeper.
// It wires the configuration, storage scopes, credential vault, token
// issuer, session manager, and auth orchestrator, then drives them from a
// small REPL.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/credkeeper/credkeeper/internal/auth"
	"github.com/credkeeper/credkeeper/internal/config"
	"github.com/credkeeper/credkeeper/internal/device"
	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/session"
	"github.com/credkeeper/credkeeper/internal/storage"
	"github.com/credkeeper/credkeeper/internal/token"
	"github.com/credkeeper/credkeeper/internal/vault"
)

type App struct {
	config   *config.Config
	db       *sql.DB
	auth     *auth.Service
	sessions *session.Manager
	log      logging.Logger
	reader   *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewText(os.Stderr, parseLevel(cfg.LogLevel))

	db, durable, err := storage.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize durable store: %w", err)
	}
	ephemeral := storage.NewMemoryStore()

	descriptor, err := device.NewOSProvider().Describe()
	if err != nil {
		// Without a device descriptor no credential operation can proceed.
		_ = db.Close()
		return nil, fmt.Errorf("failed to describe device: %w", err)
	}
	secret := device.DeriveSecret(descriptor)

	v := vault.New(durable, secret, log)
	issuer := token.NewIssuer(secret)

	sessCfg := session.Config{
		TokenTTL:         cfg.TokenTTL,
		RefreshTokenTTL:  cfg.RefreshTokenTTL,
		RefreshThreshold: cfg.RefreshThreshold,
		AutoRefresh:      cfg.AutoRefresh,
	}
	sessions := session.NewManager(sessCfg, durable, ephemeral, v, issuer, log)

	return &App{
		config:   cfg,
		db:       db,
		auth:     auth.NewService(v, sessions, log),
		sessions: sessions,
		log:      log,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run restores any remembered session, then enters the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	if s := a.sessions.Restore(ctx); s != nil {
		fmt.Printf("Welcome back, %s!\n", s.Username)
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

// Close releases the durable store. Ephemeral session state dies with the
// process; remembered sessions stay on disk for the next run.
func (a *App) Close(ctx context.Context) {
	if err := a.db.Close(); err != nil {
		a.log.Warn(ctx, "failed to close store db", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessions.IsAuthenticated()
}

func (a *App) status() string {
	if user := a.sessions.CurrentUser(); user != nil && a.sessions.IsAuthenticated() {
		return user.Username
	}
	return "not logged in"
}
