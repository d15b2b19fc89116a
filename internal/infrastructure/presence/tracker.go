package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
)

const (
	DefaultIdleAfter = 5 * time.Minute
	DefaultSweep     = 30 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

type Options struct {
	Store     Store
	Publisher Publisher
	Clock     clock.Clock
	Logger    logging.Logger
	IdleAfter time.Duration
	Sweep     time.Duration
}

// Tracker derives user presence from gateway connection lifecycle and
// heartbeats. It is best effort: a crashed node leaves records behind until
// the store expires them.
type Tracker struct {
	store     Store
	publisher Publisher
	clock     clock.Clock
	logger    logging.Logger
	idleAfter time.Duration
	sweep     time.Duration
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		store:     opts.Store,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		logger:    opts.Logger,
		idleAfter: opts.IdleAfter,
		sweep:     opts.Sweep,
	}
	if t.store == nil {
		t.store = NewMemoryStore()
	}
	if t.clock == nil {
		t.clock = clock.New()
	}
	if t.logger == nil {
		t.logger = logging.NewNop()
	}
	if t.idleAfter <= 0 {
		t.idleAfter = DefaultIdleAfter
	}
	if t.sweep <= 0 {
		t.sweep = DefaultSweep
	}
	return t
}

func (t *Tracker) Connected(ctx context.Context, id domain.Identity) error {
	now := t.clock.Now().UTC()
	return t.apply(ctx, id.UserID, func(r Record) Record {
		r.Connections++
		r.Status = domain.PresenceOnline
		r.LastSeen = now
		return r
	})
}

// Disconnected marks the user offline once their last connection is gone.
func (t *Tracker) Disconnected(ctx context.Context, id domain.Identity) error {
	now := t.clock.Now().UTC()
	return t.apply(ctx, id.UserID, func(r Record) Record {
		if r.Connections > 0 {
			r.Connections--
		}
		if r.Connections == 0 {
			r.Status = domain.PresenceOffline
		}
		r.LastSeen = now
		return r
	})
}

// Heartbeat records activity. An empty status means online.
func (t *Tracker) Heartbeat(ctx context.Context, id domain.Identity, status domain.PresenceStatus) error {
	if status == "" {
		status = domain.PresenceOnline
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown presence status %q", domain.ErrInvalidInput, status)
	}

	now := t.clock.Now().UTC()
	return t.apply(ctx, id.UserID, func(r Record) Record {
		r.Status = status
		r.LastSeen = now
		return r
	})
}

func (t *Tracker) Status(ctx context.Context, userID string) (domain.PresenceStatus, error) {
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// KeepAlive extends the user's record while a connection is alive, without
// counting as activity.
func (t *Tracker) KeepAlive(ctx context.Context, id domain.Identity) error {
	return t.store.Touch(ctx, id.UserID)
}

// Sweep announces users whose record expired as offline, then demotes users
// with no activity for IdleAfter from online to idle.
func (t *Tracker) Sweep(ctx context.Context) error {
	expired, err := t.store.Expired(ctx)
	if err != nil {
		return err
	}
	for _, rec := range expired {
		t.announce(ctx, rec.UserID, rec.Status, domain.PresenceOffline)
	}

	cutoff := t.clock.Now().Add(-t.idleAfter)

	ids, err := t.store.Stale(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, userID := range ids {
		err := t.apply(ctx, userID, func(r Record) Record {
			// activity may have arrived since Stale ran
			if r.Status == domain.PresenceOnline && r.LastSeen.Before(cutoff) {
				r.Status = domain.PresenceIdle
			}
			return r
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Run sweeps on every tick until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clock.Ticker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.Sweep(ctx); err != nil {
				t.logger.Warn(logging.Presence, logging.Heartbeat, "presence sweep failed", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}
	}
}

func (t *Tracker) apply(ctx context.Context, userID string, fn UpdateFunc) error {
	prev, next, err := t.store.Update(ctx, userID, fn)
	if err != nil {
		return err
	}
	if prev.Status != next.Status {
		t.announce(ctx, userID, prev.Status, next.Status)
	}
	return nil
}

func (t *Tracker) announce(ctx context.Context, userID string, prev, next domain.PresenceStatus) {
	if t.publisher == nil {
		return
	}

	t.logger.Debug(logging.Presence, logging.Heartbeat, "presence changed", map[logging.ExtraKey]any{
		logging.UserID: userID,
		"status":       string(next),
		"previous":     string(prev),
	})
	t.publisher.Publish(ctx, domain.PresenceChanged{
		UserID:    userID,
		Status:    next,
		Previous:  prev,
		ChangedAt: t.clock.Now().UTC(),
	})
}
