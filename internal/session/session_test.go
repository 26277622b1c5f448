package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpay/tracker/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(key Key, deadline time.Time) *Session {
	return &Session{
		Key:       key,
		Video:     models.VideoReference{CanonicalID: "7123", Resolved: true},
		Step:      AwaitingCreator,
		CreatedAt: t0,
		Deadline:  deadline,
	}
}

func TestRegistry_ReserveOpenRemove(t *testing.T) {
	r := NewRegistry(0)
	key := Key{UserID: "u1", ChannelID: "c1"}

	require.NoError(t, r.Reserve(key))
	assert.True(t, r.Busy(key))
	assert.ErrorIs(t, r.Reserve(key), ErrInProgress)
	assert.Equal(t, 1, r.Reserved())

	require.NoError(t, r.Open(newSession(key, t0.Add(time.Minute))))
	assert.Equal(t, 0, r.Reserved())
	assert.Equal(t, 1, r.Len())
	assert.ErrorIs(t, r.Reserve(key), ErrInProgress)
	assert.ErrorIs(t, r.Open(newSession(key, t0)), ErrInProgress)

	s, ok := r.Remove(key)
	require.True(t, ok)
	assert.Equal(t, key, s.Key)
	assert.False(t, r.Busy(key))
	_, ok = r.Remove(key)
	assert.False(t, ok)
}

func TestRegistry_KeysAreIndependent(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Reserve(Key{UserID: "u1", ChannelID: "c1"}))
	assert.NoError(t, r.Reserve(Key{UserID: "u1", ChannelID: "c2"}))
	assert.NoError(t, r.Reserve(Key{UserID: "u2", ChannelID: "c1"}))
}

func TestRegistry_Release(t *testing.T) {
	r := NewRegistry(0)
	key := Key{UserID: "u1", ChannelID: "c1"}
	require.NoError(t, r.Reserve(key))
	r.Release(key)
	assert.False(t, r.Busy(key))
	assert.NoError(t, r.Reserve(key))
}

func TestRegistry_Capacity(t *testing.T) {
	r := NewRegistry(2)
	require.NoError(t, r.Reserve(Key{UserID: "a"}))
	require.NoError(t, r.Open(newSession(Key{UserID: "b"}, t0)))
	assert.ErrorIs(t, r.Reserve(Key{UserID: "c"}), ErrRegistryFull)

	// a reserved key can always be opened
	assert.NoError(t, r.Open(newSession(Key{UserID: "a"}, t0)))
}

func TestRegistry_Expired(t *testing.T) {
	r := NewRegistry(0)
	late := newSession(Key{UserID: "late"}, t0.Add(2*time.Second))
	early := newSession(Key{UserID: "early"}, t0.Add(time.Second))
	live := newSession(Key{UserID: "live"}, t0.Add(time.Hour))
	committing := newSession(Key{UserID: "committing"}, t0)
	committing.Committing = true
	for _, s := range []*Session{late, early, live, committing} {
		require.NoError(t, r.Open(s))
	}

	expired := r.Expired(t0.Add(5 * time.Second))
	require.Len(t, expired, 2)
	assert.Equal(t, "early", expired[0].Key.UserID)
	assert.Equal(t, "late", expired[1].Key.UserID)
	assert.Equal(t, 4, r.Len())
}

func TestSession_DeadlineBoundary(t *testing.T) {
	s := newSession(Key{UserID: "u"}, t0)
	s.Advance(AwaitingAmount, t0, 60*time.Second)
	assert.Equal(t, AwaitingAmount, s.Step)
	assert.False(t, s.Expired(t0.Add(59*time.Second)))
	assert.True(t, s.Expired(t0.Add(60*time.Second)))

	s.Refresh(t0.Add(59*time.Second), 60*time.Second)
	assert.False(t, s.Expired(t0.Add(60*time.Second)))
}

func TestRegistry_ByConfirmMessage(t *testing.T) {
	r := NewRegistry(0)
	s := newSession(Key{UserID: "u", ChannelID: "c"}, t0.Add(time.Minute))
	s.Step = AwaitingConfirmation
	s.ConfirmMessageID = "m1"
	require.NoError(t, r.Open(s))

	got, ok := r.ByConfirmMessage("c", "m1")
	require.True(t, ok)
	assert.Same(t, s, got)
	_, ok = r.ByConfirmMessage("other", "m1")
	assert.False(t, ok)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "awaiting_notes", AwaitingNotes.String())
	assert.Equal(t, "unknown", Step(42).String())
}
