package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

type RedisRelay struct {
	client  *redis.Client
	owned   bool
	channel string
	logger  logging.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func NewRedisRelay(url, channel string, logger logging.Logger) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	r := NewRedisRelayWithClient(client, channel, logger)
	r.owned = true
	return r, nil
}

// NewRedisRelayWithClient leaves the client open on Close.
func NewRedisRelayWithClient(client *redis.Client, channel string, logger logging.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *RedisRelay) Subscribe(ctx context.Context, h Handler) error {
	ps := r.client.Subscribe(ctx, r.channel)
	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe to %s: %w", r.channel, err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range ps.Channel() {
			env, err := decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn(logging.Redis, logging.Subscription, "dropping malformed envelope", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
				continue
			}
			h(env)
		}
	}()
	return nil
}

func (r *RedisRelay) Close() error {
	var err error

	r.mu.Lock()
	if r.pubsub != nil {
		err = multierr.Append(err, r.pubsub.Close())
		r.pubsub = nil
	}
	r.mu.Unlock()
	r.wg.Wait()

	if r.owned {
		err = multierr.Append(err, r.client.Close())
	}
	return err
}
