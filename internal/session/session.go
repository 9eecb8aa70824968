// Package session owns the single active session: creation, restoration
// from persisted storage, timer-driven refresh, and teardown.
package session

import (
	"time"
)

// Persisted key names. The durable scope holds all three; the ephemeral
// scope uses the identical keys in a storage area that dies with the
// process run. Clear removes every key from both scopes.
const (
	KeySession = "credkeeper.session"
	KeyRefresh = "credkeeper.session.refresh"
	KeyAccess  = "credkeeper.session.access"
)

// User is the authenticated identity a session belongs to.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Session is the in-memory authenticated session. At most one instance is
// current; it is owned exclusively by the Manager and callers read it only
// through accessor copies.
//
// Invariants: CreatedAt <= LastActivity, ExpiresAt > CreatedAt.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`

	// Remember records the storage scope chosen at creation. Every later
	// write (refresh, activity update) respects it; ephemeral sessions are
	// never promoted to durable.
	Remember bool `json:"remember"`
}

// User returns the identity owning the session.
func (s *Session) User() User {
	return User{ID: s.UserID, Username: s.Username}
}

// Stats is the read-only session summary exposed to external collaborators.
type Stats struct {
	IsActive           bool
	TimeRemaining      time.Duration
	LastActivity       time.Time
	AutoRefreshEnabled bool
}

// Config carries the session lifetime parameters.
type Config struct {
	// TokenTTL is the access-token lifetime (default 15m).
	TokenTTL time.Duration
	// RefreshTokenTTL is the refresh-token lifetime (default 7d).
	RefreshTokenTTL time.Duration
	// RefreshThreshold is how long before expiry the auto-refresh timer
	// fires (default 5m).
	RefreshThreshold time.Duration
	// AutoRefresh arms the refresh timer on create/restore/refresh.
	AutoRefresh bool
}

// DefaultConfig returns the standard lifetimes.
func DefaultConfig() Config {
	return Config{
		TokenTTL:         15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		RefreshThreshold: 5 * time.Minute,
		AutoRefresh:      true,
	}
}
