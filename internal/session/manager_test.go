package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credkeeper/credkeeper/internal/logging"
	"github.com/credkeeper/credkeeper/internal/storage"
	"github.com/credkeeper/credkeeper/internal/token"
	"github.com/credkeeper/credkeeper/internal/vault"
)

const testSecret = "5d41402abc4b2a76b9719d911017c5925d41402abc4b2a76b9719d911017c592"

// fixture bundles a manager with its collaborators and a movable clock.
type fixture struct {
	clock     time.Time
	durable   *storage.MemoryStore
	ephemeral *storage.MemoryStore
	vault     *vault.Vault
	issuer    *token.Issuer
	manager   *Manager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		durable:   storage.NewMemoryStore(),
		ephemeral: storage.NewMemoryStore(),
	}

	log := logging.NewText(io.Discard, slog.LevelError)
	f.vault = vault.New(f.durable, testSecret, log)
	f.issuer = token.NewIssuer(testSecret).WithClock(f.now)
	f.manager = NewManager(cfg, f.durable, f.ephemeral, f.vault, f.issuer, log).WithClock(f.now)

	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// newManager simulates a fresh process over the same stores.
func (f *fixture) newManager(cfg Config) *Manager {
	log := logging.NewText(io.Discard, slog.LevelError)
	return NewManager(cfg, f.durable, f.ephemeral, f.vault, f.issuer, log).WithClock(f.now)
}

func (f *fixture) registerAlice(t *testing.T) User {
	t.Helper()
	require.NoError(t, f.vault.Store(context.Background(), "alice", vault.NewCredential("alice", "Str0ng!pass")))
	return User{ID: "user-alice", Username: "alice"}
}

func noRefreshConfig() Config {
	cfg := DefaultConfig()
	cfg.AutoRefresh = false
	return cfg
}

func TestCreate_Authenticated(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	s, err := f.manager.Create(ctx, user, false)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, f.clock.Add(15*time.Minute), s.ExpiresAt)
	assert.True(t, f.manager.IsAuthenticated())
}

func TestIsAuthenticated_LazyExpiry(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	user := f.registerAlice(t)

	_, err := f.manager.Create(context.Background(), user, false)
	require.NoError(t, err)
	require.True(t, f.manager.IsAuthenticated())

	f.advance(16 * time.Minute)
	assert.False(t, f.manager.IsAuthenticated())

	// Lazy check only: the session itself is still present.
	assert.NotNil(t, f.manager.Current())
}

func TestCreate_PersistsToDurableScope(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	for _, key := range []string{KeySession, KeyRefresh, KeyAccess} {
		v, err := f.durable.Get(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, v, "missing durable key %s", key)
	}

	keys, err := f.ephemeral.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCreate_EphemeralScopeIsNotRestorable(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, false)
	require.NoError(t, err)

	v, err := f.durable.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.Nil(t, v)

	m2 := f.newManager(noRefreshConfig())
	assert.Nil(t, m2.Restore(ctx))
}

func TestRestore_AdoptsUntouchedDurableRecord(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	created, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	// Fresh process over the same stores.
	m2 := f.newManager(noRefreshConfig())
	restored := m2.Restore(ctx)

	require.NotNil(t, restored)
	assert.Equal(t, created.ID, restored.ID)
	assert.Equal(t, "alice", restored.Username)
	assert.True(t, m2.IsAuthenticated())
}

func TestRestore_AbsentRecordReturnsNil(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	assert.Nil(t, f.manager.Restore(context.Background()))
}

func TestRestore_CorruptedRecordWipesStorage(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)
	require.NoError(t, f.durable.Set(ctx, KeySession, []byte("{corrupted")))

	m2 := f.newManager(noRefreshConfig())
	assert.Nil(t, m2.Restore(ctx))

	v, err := f.durable.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.Nil(t, v, "corrupted key must be removed")
}

func TestRestore_TamperedTokenWipesStorage(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	// Swap the persisted record's token for one minted for another user.
	other, err := f.issuer.IssueAccess("user-mallory", "mallory", f.clock.Add(15*time.Minute))
	require.NoError(t, err)

	m2 := f.newManager(noRefreshConfig())
	s := m2.Restore(ctx)
	require.NotNil(t, s)

	data, err := f.durable.Get(ctx, KeySession)
	require.NoError(t, err)
	tampered := []byte(string(data))
	tampered = []byte(replaceToken(t, string(tampered), other))
	require.NoError(t, f.durable.Set(ctx, KeySession, tampered))

	m3 := f.newManager(noRefreshConfig())
	assert.Nil(t, m3.Restore(ctx))

	for _, key := range []string{KeySession, KeyRefresh, KeyAccess} {
		v, err := f.durable.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
}

func TestRestore_MissingCredentialWipesStorage(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	// The vault record disappears between runs.
	require.NoError(t, f.vault.Delete(ctx, "alice"))

	m2 := f.newManager(noRefreshConfig())
	assert.Nil(t, m2.Restore(ctx))
}

func TestRestore_ExpiredRecordRefreshes(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	created, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	// Past the access expiry but within the refresh-token lifetime.
	f.advance(time.Hour)

	m2 := f.newManager(noRefreshConfig())
	restored := m2.Restore(ctx)

	require.NotNil(t, restored)
	assert.Equal(t, created.ID, restored.ID)
	assert.Equal(t, created.UserID, restored.UserID)
	assert.NotEqual(t, created.Token, restored.Token)
	assert.True(t, restored.ExpiresAt.After(created.ExpiresAt))
}

func TestRestore_ExpiredRecordWithInvalidRefreshTokenWipes(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	require.NoError(t, f.durable.Set(ctx, KeyRefresh, []byte("!!!garbage!!!")))
	f.advance(time.Hour)

	m2 := f.newManager(noRefreshConfig())
	assert.Nil(t, m2.Restore(ctx))

	for _, key := range []string{KeySession, KeyRefresh, KeyAccess} {
		v, err := f.durable.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.False(t, m2.IsAuthenticated())
}

func TestRestore_ExpiredRefreshTokenWipes(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	// Past the refresh-token lifetime as well.
	f.advance(8 * 24 * time.Hour)

	m2 := f.newManager(noRefreshConfig())
	assert.Nil(t, m2.Restore(ctx))
	assert.False(t, m2.IsAuthenticated())
}

func TestRefresh_TwiceYieldsFreshTokensAndIncreasingExpiry(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	created, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	f.advance(time.Minute)
	first := f.manager.Refresh(ctx)
	require.NotNil(t, first)

	f.advance(time.Minute)
	second := f.manager.Refresh(ctx)
	require.NotNil(t, second)

	assert.NotEqual(t, created.Token, first.Token)
	assert.NotEqual(t, first.Token, second.Token)

	assert.Equal(t, created.UserID, first.UserID)
	assert.Equal(t, created.UserID, second.UserID)
	assert.Equal(t, created.Username, second.Username)
	assert.Equal(t, created.ID, second.ID)
	assert.Equal(t, created.RefreshToken, second.RefreshToken)

	assert.True(t, first.ExpiresAt.After(created.ExpiresAt))
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))
}

func TestRefresh_WithoutSessionReturnsNil(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	assert.Nil(t, f.manager.Refresh(context.Background()))
}

func TestRefresh_RespectsEphemeralScope(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, false)
	require.NoError(t, err)

	f.advance(time.Minute)
	refreshed := f.manager.Refresh(ctx)
	require.NotNil(t, refreshed)

	// No write may leak into the durable scope.
	keys, err := f.durable.Keys(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotContains(t, []string{KeySession, KeyRefresh, KeyAccess}, k)
	}
}

func TestClear_RemovesEverything(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	_, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	f.manager.Clear(ctx)

	assert.False(t, f.manager.IsAuthenticated())
	assert.Nil(t, f.manager.Current())
	assert.Nil(t, f.manager.CurrentUser())

	for _, key := range []string{KeySession, KeyRefresh, KeyAccess} {
		v, err := f.durable.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, v)
	}

	assert.Nil(t, f.manager.Restore(ctx))
}

func TestUpdateActivity(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	created, err := f.manager.Create(ctx, user, true)
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	f.manager.UpdateActivity(ctx)

	current := f.manager.Current()
	require.NotNil(t, current)
	assert.True(t, current.LastActivity.After(created.LastActivity))
	assert.False(t, current.CreatedAt.After(current.LastActivity))

	// No-op when absent.
	f.manager.Clear(ctx)
	f.manager.UpdateActivity(ctx)
	assert.Nil(t, f.manager.Current())
}

func TestStats(t *testing.T) {
	f := newFixture(t, noRefreshConfig())
	ctx := context.Background()
	user := f.registerAlice(t)

	st := f.manager.Stats()
	assert.False(t, st.IsActive)
	assert.Zero(t, st.TimeRemaining)

	_, err := f.manager.Create(ctx, user, false)
	require.NoError(t, err)

	st = f.manager.Stats()
	assert.True(t, st.IsActive)
	assert.Equal(t, 15*time.Minute, st.TimeRemaining)
	assert.False(t, st.AutoRefreshEnabled)

	f.advance(16 * time.Minute)
	st = f.manager.Stats()
	assert.False(t, st.IsActive)
	assert.Zero(t, st.TimeRemaining)
}

func TestAutoRefresh_TimerFires(t *testing.T) {
	cfg := Config{
		TokenTTL:         80 * time.Millisecond,
		RefreshTokenTTL:  time.Hour,
		RefreshThreshold: 40 * time.Millisecond,
		AutoRefresh:      true,
	}

	durable := storage.NewMemoryStore()
	ephemeral := storage.NewMemoryStore()
	log := logging.NewText(io.Discard, slog.LevelError)
	v := vault.New(durable, testSecret, log)
	issuer := token.NewIssuer(testSecret)
	m := NewManager(cfg, durable, ephemeral, v, issuer, log)

	ctx := context.Background()
	require.NoError(t, v.Store(ctx, "alice", vault.NewCredential("alice", "Str0ng!pass")))

	created, err := m.Create(ctx, User{ID: "user-alice", Username: "alice"}, true)
	require.NoError(t, err)

	// A fired timer refreshes in place, which stamps a later LastActivity.
	require.Eventually(t, func() bool {
		current := m.Current()
		return current != nil && current.LastActivity.After(created.LastActivity)
	}, 2*time.Second, 10*time.Millisecond, "refresh timer should have refreshed the session")

	assert.True(t, m.IsAuthenticated())
	m.Clear(ctx)
}

// replaceToken swaps the "token" field value inside a persisted session
// record without disturbing the rest of the JSON.
func replaceToken(t *testing.T, recordJSON, newToken string) string {
	t.Helper()

	var s Session
	require.NoError(t, json.Unmarshal([]byte(recordJSON), &s))
	s.Token = newToken
	out, err := json.Marshal(s)
	require.NoError(t, err)
	return string(out)
}
