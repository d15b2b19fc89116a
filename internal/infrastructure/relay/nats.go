package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/nats-io/nats.go"
)

type NatsRelay struct {
	conn    *nats.Conn
	subject string
	logger  logging.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewNatsRelay(url, subject, name string, logger logging.Logger) (*NatsRelay, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(logging.Nats, logging.ExternalService, "nats disconnected", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(logging.Nats, logging.ExternalService, "nats reconnected", map[logging.ExtraKey]any{
				"url": c.ConnectedUrl(),
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NatsRelay{conn: conn, subject: subject, logger: logger}, nil
}

func (r *NatsRelay) Publish(_ context.Context, env Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		return fmt.Errorf("nats publish to %s: %w", r.subject, err)
	}
	return nil
}

// Subscribe relies on nats delivering one subscription's messages on a
// single goroutine.
func (r *NatsRelay) Subscribe(_ context.Context, h Handler) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		env, err := decode(msg.Data)
		if err != nil {
			r.logger.Warn(logging.Nats, logging.Subscription, "dropping malformed envelope", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
			return
		}
		h(env)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe to %s: %w", r.subject, err)
	}
	if err := r.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return nil
}

func (r *NatsRelay) Close() error {
	r.mu.Lock()
	r.sub = nil
	r.mu.Unlock()

	// Drain flushes pending publishes and unsubscribes before closing.
	if err := r.conn.Drain(); err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
