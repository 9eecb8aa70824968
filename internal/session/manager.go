package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credkeeper/credkeeper/internal/common"
	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/storage"
	"github.com/credkeeper/credkeeper/internal/token"
	"github.com/credkeeper/credkeeper/internal/vault"
)

// Manager owns the single current session and the pending refresh timer.
// The mutex guards both as one unit: the timer callback runs on its own
// goroutine and re-enters through Refresh.
//
// State machine: Absent -> Active (Create/Restore) -> Active (Refresh
// success) or Absent (Refresh failure, Clear). Restore, Refresh, and Clear
// are fail-closed: they delete inconsistent persisted state before
// returning and never propagate storage or crypto errors to callers.
type Manager struct {
	mu sync.Mutex

	cfg       Config
	durable   storage.Store
	ephemeral storage.Store
	vault     *vault.Vault
	issuer    *token.Issuer
	log       logging.Logger

	current *Session
	timer   *time.Timer

	// now is a seam for tests; defaults to time.Now.
	now func() time.Time
}

func NewManager(cfg Config, durable, ephemeral storage.Store, v *vault.Vault, issuer *token.Issuer, log logging.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		durable:   durable,
		ephemeral: ephemeral,
		vault:     v,
		issuer:    issuer,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the manager's time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// scopeOf returns the store the session was created against.
func (m *Manager) scopeOf(s *Session) storage.Store {
	if s.Remember {
		return m.durable
	}
	return m.ephemeral
}

// Create issues fresh tokens for user, installs the new session as current,
// persists it to the scope selected by remember, and arms the refresh
// timer. This is the single path by which a new Active state is entered.
func (m *Manager) Create(ctx context.Context, user User, remember bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	tokenExpiry := now.Add(m.cfg.TokenTTL)
	refreshExpiry := now.Add(m.cfg.RefreshTokenTTL)

	access, err := m.issuer.IssueAccess(user.ID, user.Username, tokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refresh, err := m.issuer.IssueRefresh(user.ID, user.Username, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	s := &Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Username:     user.Username,
		Token:        access,
		RefreshToken: refresh,
		CreatedAt:    now,
		ExpiresAt:    tokenExpiry,
		LastActivity: now,
		Remember:     remember,
	}

	if err := m.persistLocked(ctx, s); err != nil {
		return nil, err
	}

	m.current = s
	m.armTimerLocked(s.ExpiresAt)

	m.log.Info(ctx, "session created", "session_id", s.ID, "username", s.Username, "remember", remember)

	return copySession(s), nil
}

// Restore reads the durable persisted record and tries to re-adopt it.
//
// Absent record: returns nil with no state change. Expired record: adopts
// it and delegates to exactly one refresh attempt. Otherwise the record is
// validated (stored-credential integrity plus structural token identity);
// any failure, including unexpected errors, wipes all session storage and
// returns nil. Restoration never leaves a half-valid session behind.
func (m *Manager) Restore(ctx context.Context) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.durable.Get(ctx, KeySession)
	if err != nil {
		m.log.Warn(ctx, "session restore read failed", "error", err)
		m.clearLocked(ctx)
		return nil
	}
	if data == nil {
		return nil
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		m.log.Warn(ctx, "persisted session is corrupted, wiping", "error", err)
		m.clearLocked(ctx)
		return nil
	}

	if !m.now().Before(s.ExpiresAt) {
		// Expired on disk: adopt and attempt a single refresh.
		m.current = &s
		return m.refreshLocked(ctx)
	}

	if !m.validateLocked(ctx, &s) {
		m.log.Warn(ctx, "persisted session failed validation, wiping", "session_id", s.ID)
		m.clearLocked(ctx)
		return nil
	}

	m.current = &s
	m.armTimerLocked(s.ExpiresAt)

	m.log.Info(ctx, "session restored", "session_id", s.ID, "username", s.Username)

	return copySession(&s)
}

// Refresh exchanges the persisted refresh token for a new access token,
// keeping the session identifier, user identity, and refresh token
// unchanged. Any failure clears the session and returns nil (fail-closed).
func (m *Manager) Refresh(ctx context.Context) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) *Session {
	if m.current == nil {
		return nil
	}

	refresh, err := m.scopeOf(m.current).Get(ctx, KeyRefresh)
	if err != nil || refresh == nil {
		m.log.Warn(ctx, "refresh token unavailable", "error", err)
		m.clearLocked(ctx)
		return nil
	}

	if !m.issuer.ValidateRefresh(string(refresh)) {
		m.log.Warn(ctx, "refresh token invalid or expired", "session_id", m.current.ID)
		m.clearLocked(ctx)
		return nil
	}

	now := m.now()
	expiry := now.Add(m.cfg.TokenTTL)

	access, err := m.issuer.IssueAccess(m.current.UserID, m.current.Username, expiry)
	if err != nil {
		m.log.Error(ctx, "failed to issue access token on refresh", "error", err)
		m.clearLocked(ctx)
		return nil
	}

	m.current.Token = access
	m.current.ExpiresAt = expiry
	m.current.LastActivity = now

	if err := m.persistLocked(ctx, m.current); err != nil {
		m.log.Error(ctx, "failed to persist refreshed session", "error", err)
		m.clearLocked(ctx)
		return nil
	}

	m.armTimerLocked(expiry)

	m.log.Info(ctx, "session refreshed", "session_id", m.current.ID, "expires_at", expiry)

	return copySession(m.current)
}

// Clear cancels any pending refresh, removes every persisted session key
// from both scopes, and sets the current session to absent. Storage errors
// are logged and swallowed: logout always succeeds for the caller.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(ctx)
}

func (m *Manager) clearLocked(ctx context.Context) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	for _, store := range []storage.Store{m.durable, m.ephemeral} {
		for _, key := range []string{KeySession, KeyRefresh, KeyAccess} {
			if err := store.Delete(ctx, key); err != nil {
				m.log.Warn(ctx, "failed to delete session key", "key", key, "error", err)
			}
		}
	}

	m.current = nil
}

// Current returns a copy of the current session, or nil when absent.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.current)
}

// CurrentUser returns the identity of the current session, or nil.
func (m *Manager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	u := m.current.User()
	return &u
}

// IsAuthenticated reports whether a current session exists and has not
// passed its expiry. The check is lazy: an expired session is reported as
// unauthenticated but the stored state is not touched.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil && m.now().Before(m.current.ExpiresAt)
}

// UpdateActivity stamps LastActivity on the current session and
// re-persists it to the session's own scope. No-op when absent.
func (m *Manager) UpdateActivity(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	m.current.LastActivity = m.now()
	if err := m.persistLocked(ctx, m.current); err != nil {
		m.log.Warn(ctx, "failed to persist activity update", "error", err)
	}
}

// Stats summarizes the current session for dashboards and diagnostics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{AutoRefreshEnabled: m.cfg.AutoRefresh}
	if m.current == nil {
		return st
	}

	now := m.now()
	st.IsActive = now.Before(m.current.ExpiresAt)
	if remaining := m.current.ExpiresAt.Sub(now); remaining > 0 {
		st.TimeRemaining = remaining
	}
	st.LastActivity = m.current.LastActivity
	return st
}

// validateLocked checks a restored record: the vault must hold an intact
// credential for its username, and the access token must structurally
// belong to it. A mismatch is treated as tampering.
func (m *Manager) validateLocked(ctx context.Context, s *Session) bool {
	if !m.vault.VerifyIntegrity(ctx, s.Username) {
		return false
	}
	return m.issuer.ValidateAccessStructure(s.Token, s.Username)
}

// persistLocked writes the session record, refresh token, and access token
// to the scope fixed at creation. Failures surface as common.ErrStorage.
func (m *Manager) persistLocked(ctx context.Context, s *Session) error {
	store := m.scopeOf(s)

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := store.Set(ctx, KeySession, data); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if err := store.Set(ctx, KeyRefresh, []byte(s.RefreshToken)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if err := store.Set(ctx, KeyAccess, []byte(s.Token)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// armTimerLocked schedules a one-shot refresh at expiry minus the
// threshold. Any prior timer is cancelled first, so at most one timer is
// ever pending.
func (m *Manager) armTimerLocked(expiry time.Time) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if !m.cfg.AutoRefresh {
		return
	}

	d := expiry.Add(-m.cfg.RefreshThreshold).Sub(m.now())
	if d < 0 {
		d = 0
	}

	m.timer = time.AfterFunc(d, func() {
		m.Refresh(context.Background())
	})
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
