package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backdate(rec *Record, idle time.Duration) {
	rec.lastActivity.Store(time.Now().Add(-idle).UnixNano())
}

func newTestReaper(t *testing.T, env *testEnv, idleTimeout time.Duration) *Reaper {
	t.Helper()
	r, err := NewReaper(env.manager, idleTimeout, time.Minute, zerolog.Nop())
	require.NoError(t, err)
	return r
}

func TestNewReaperValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := NewReaper(env.manager, 0, time.Minute, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewReaper(env.manager, time.Minute, -time.Second, zerolog.Nop())
	assert.Error(t, err)
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	require.NoError(t, env.manager.Login(ctx, loginParams("bob")))

	aliceRec, _ := env.manager.Store().Get("alice")
	backdate(aliceRec, 31*time.Minute)

	r := newTestReaper(t, env, 30*time.Minute)
	assert.Equal(t, 1, r.Sweep(time.Now()))

	_, ok := env.manager.Store().Get("alice")
	assert.False(t, ok)
	_, ok = env.manager.Store().Get("bob")
	assert.True(t, ok)

	assert.Equal(t, int32(1), env.agentFor("alice").closed.Load())
	assert.Contains(t, env.eventTypes(), EventEvicted)

	_, err := env.manager.Chat(ctx, "alice", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReaperKeepsFreshSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))

	r := newTestReaper(t, env, 30*time.Minute)
	assert.Equal(t, 0, r.Sweep(time.Now()))
	assert.Equal(t, 1, env.manager.Store().Len())
}

func TestReaperSkipsSessionMidTurn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	rec, _ := env.manager.Store().Get("alice")
	backdate(rec, time.Hour)

	// Simulate an in-flight turn holding the execution lock.
	rec.execMu.Lock()

	r := newTestReaper(t, env, 30*time.Minute)
	assert.Equal(t, 0, r.Sweep(time.Now()))
	assert.Equal(t, 1, env.manager.Store().Len())

	rec.execMu.Unlock()
	assert.Equal(t, 1, r.Sweep(time.Now()))
	assert.Equal(t, 0, env.manager.Store().Len())
}

func TestReaperRechecksIdleAgeUnderLock(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	rec, _ := env.manager.Store().Get("alice")
	backdate(rec, time.Hour)

	// A turn completed after the idle snapshot was taken.
	rec.Touch()

	r := newTestReaper(t, env, 30*time.Minute)
	assert.False(t, r.evict(rec, time.Now()))
	assert.Equal(t, 1, env.manager.Store().Len())
}

func TestReaperNeverTearsDownRelogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	stale, _ := env.manager.Store().Get("alice")
	backdate(stale, time.Hour)

	// The user logs back in between the reaper's snapshot and its eviction.
	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	fresh, _ := env.manager.Store().Get("alice")
	require.NotSame(t, stale, fresh)

	r := newTestReaper(t, env, 30*time.Minute)
	assert.False(t, r.evict(stale, time.Now()))

	got, ok := env.manager.Store().Get("alice")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	_, err := env.manager.Chat(ctx, "alice", "still alive")
	assert.NoError(t, err)
}

func TestReaperStartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.manager.Login(ctx, loginParams("alice")))
	rec, _ := env.manager.Store().Get("alice")
	backdate(rec, time.Hour)

	r, err := NewReaper(env.manager, 30*time.Minute, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return env.manager.Store().Len() == 0
	}, time.Second, 5*time.Millisecond)
}
