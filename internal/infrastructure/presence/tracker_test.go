package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PresenceChanged
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pc, ok := evt.(domain.PresenceChanged); ok {
		p.events = append(p.events, pc)
	}
}

func (p *recordingPublisher) snapshot() []domain.PresenceChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PresenceChanged(nil), p.events...)
}

var alice = domain.Identity{UserID: "1001", Username: "alice"}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, time.Hour),
	}
}

func newTracker(store Store) (*Tracker, *clock.Mock, *recordingPublisher) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	return NewTracker(Options{
		Store:     store,
		Publisher: pub,
		Clock:     mock,
		IdleAfter: 5 * time.Minute,
		Sweep:     30 * time.Second,
	}), mock, pub
}

func TestTracker_Lifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tracker, mock, pub := newTracker(store)

			status, err := tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOffline, status)

			require.NoError(t, tracker.Connected(ctx, alice))
			require.NoError(t, tracker.Connected(ctx, alice))

			status, err = tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOnline, status)

			mock.Add(time.Minute)
			require.NoError(t, tracker.Disconnected(ctx, alice))
			status, err = tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOnline, status, "one connection remains")

			require.NoError(t, tracker.Disconnected(ctx, alice))
			status, err = tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOffline, status)

			events := pub.snapshot()
			require.Len(t, events, 2)
			assert.Equal(t, domain.PresenceOffline, events[0].Previous)
			assert.Equal(t, domain.PresenceOnline, events[0].Status)
			assert.Equal(t, domain.PresenceOnline, events[1].Previous)
			assert.Equal(t, domain.PresenceOffline, events[1].Status)
			assert.Equal(t, mock.Now().UTC(), events[1].ChangedAt)
		})
	}
}

func TestTracker_SweepDemotesIdleUsers(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tracker, mock, pub := newTracker(store)
			bob := domain.Identity{UserID: "1002", Username: "bob"}

			require.NoError(t, tracker.Connected(ctx, alice))
			require.NoError(t, tracker.Connected(ctx, bob))

			mock.Add(4 * time.Minute)
			require.NoError(t, tracker.Heartbeat(ctx, bob, ""))

			mock.Add(2 * time.Minute)
			require.NoError(t, tracker.Sweep(ctx))

			status, err := tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceIdle, status)

			status, err = tracker.Status(ctx, bob.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOnline, status)

			events := pub.snapshot()
			require.Len(t, events, 3)
			assert.Equal(t, alice.UserID, events[2].UserID)
			assert.Equal(t, domain.PresenceIdle, events[2].Status)

			// a heartbeat brings the idle user back
			require.NoError(t, tracker.Heartbeat(ctx, alice, ""))
			status, err = tracker.Status(ctx, alice.UserID)
			require.NoError(t, err)
			assert.Equal(t, domain.PresenceOnline, status)
		})
	}
}

func TestTracker_HeartbeatStatus(t *testing.T) {
	ctx := context.Background()
	tracker, _, pub := newTracker(NewMemoryStore())

	require.NoError(t, tracker.Connected(ctx, alice))
	require.NoError(t, tracker.Heartbeat(ctx, alice, domain.PresenceIdle))
	require.NoError(t, tracker.Heartbeat(ctx, alice, domain.PresenceIdle))

	assert.Len(t, pub.snapshot(), 2, "unchanged status publishes nothing")

	err := tracker.Heartbeat(ctx, alice, "dancing")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTracker_RunSweepsOnTick(t *testing.T) {
	tracker, mock, _ := newTracker(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, tracker.Connected(ctx, alice))

	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(30 * time.Second)
		status, err := tracker.Status(context.Background(), alice.UserID)
		return err == nil && status == domain.PresenceIdle
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRedisStore_ExpiresRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, time.Minute)
	tracker, _, _ := newTracker(store)
	ctx := context.Background()

	require.NoError(t, tracker.Connected(ctx, alice))
	assert.True(t, mr.Exists("chorus:presence:1001"))

	mr.FastForward(2 * time.Minute)

	status, err := tracker.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, status)
}

// defaultRedisTracker builds a tracker on a Redis store with the shipped
// presence settings; mr and the mock clock must be advanced together.
func defaultRedisTracker(t *testing.T) (*Tracker, *miniredis.Miniredis, *clock.Mock, *recordingPublisher) {
	t.Helper()
	t.Setenv("AUTH_SECRET", "presence-test")
	cfg, err := configs.Load("")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	tracker := NewTracker(Options{
		Store:     NewRedisStore(client, cfg.Presence.TTL),
		Publisher: pub,
		Clock:     mock,
		IdleAfter: cfg.Presence.IdleAfter,
		Sweep:     cfg.Presence.Sweep,
	})
	return tracker, mr, mock, pub
}

func TestRedisTracker_DefaultsReachIdleBeforeExpiry(t *testing.T) {
	tracker, mr, mock, pub := defaultRedisTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Connected(ctx, alice))
	require.NoError(t, tracker.Connected(ctx, alice))

	mock.Add(6 * time.Minute)
	mr.FastForward(6 * time.Minute)
	require.NoError(t, tracker.Sweep(ctx))

	status, err := tracker.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceIdle, status)

	// one of two tabs closes; the other keeps the user present
	require.NoError(t, tracker.Disconnected(ctx, alice))
	status, err = tracker.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceIdle, status)

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, domain.PresenceOnline, events[1].Previous)
	assert.Equal(t, domain.PresenceIdle, events[1].Status)
}

func TestRedisTracker_KeepAliveHoldsRecordPastTTL(t *testing.T) {
	tracker, mr, mock, pub := defaultRedisTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Connected(ctx, alice))
	for i := 0; i < 6; i++ {
		mock.Add(5 * time.Minute)
		mr.FastForward(5 * time.Minute)
		require.NoError(t, tracker.KeepAlive(ctx, alice))
		require.NoError(t, tracker.Sweep(ctx))
	}

	status, err := tracker.Status(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceIdle, status)
	for _, evt := range pub.snapshot() {
		assert.NotEqual(t, domain.PresenceOffline, evt.Status)
	}
}

func TestRedisTracker_SweepAnnouncesExpiredUsersOffline(t *testing.T) {
	tracker, mr, mock, pub := defaultRedisTracker(t)
	ctx := context.Background()
	bob := domain.Identity{UserID: "1002", Username: "bob"}

	require.NoError(t, tracker.Connected(ctx, alice))
	require.NoError(t, tracker.Connected(ctx, bob))

	mock.Add(6 * time.Minute)
	mr.FastForward(6 * time.Minute)
	require.NoError(t, tracker.Sweep(ctx))

	// bob's connection stays alive, alice's node went away without a word
	for i := 0; i < 2; i++ {
		mock.Add(10 * time.Minute)
		mr.FastForward(10 * time.Minute)
		require.NoError(t, tracker.KeepAlive(ctx, bob))
	}
	require.NoError(t, tracker.Sweep(ctx))

	events := pub.snapshot()
	require.Len(t, events, 5)
	last := events[4]
	assert.Equal(t, alice.UserID, last.UserID)
	assert.Equal(t, domain.PresenceIdle, last.Previous)
	assert.Equal(t, domain.PresenceOffline, last.Status)

	status, err := tracker.Status(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceIdle, status)

	// an expiry is announced once
	require.NoError(t, tracker.Sweep(ctx))
	assert.Len(t, pub.snapshot(), 5)
}

func TestMemoryStore_NeverExpires(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Touch(context.Background(), alice.UserID))
	expired, err := store.Expired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)
}
