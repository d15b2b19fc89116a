package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
)

// Envelope carries one room broadcast between gateway processes.
type Envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
	// Trace holds the publisher's trace context headers.
	Trace map[string]string `json:"trace,omitempty"`
}

type Handler func(Envelope)

// Relay is the transport between gateway processes. Every subscriber,
// including the publisher's own, receives each published envelope; callers
// filter on Origin.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe returns once the subscription is live. h is called from a
	// single goroutine in arrival order.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// New builds the relay selected by cfg.Driver. The memory driver only
// reaches relays created from the same Hub, so it serves single-node
// deployments.
func New(cfg configs.RelayConfig, node string, logger logging.Logger) (Relay, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewHub().Relay(), nil
	case "redis":
		return NewRedisRelay(cfg.RedisURL, cfg.Channel, logger)
	case "nats":
		return NewNatsRelay(cfg.NatsURL, cfg.Channel, node, logger)
	case "rabbitmq":
		return NewRabbitRelay(cfg.RabbitMQURI, cfg.Channel, logger)
	default:
		return nil, &domain.ConfigurationError{Field: "relay.driver", Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
}

func encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope for %s: %w", env.Room, err)
	}
	return data, nil
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Room == "" || env.Origin == "" {
		return Envelope{}, fmt.Errorf("decode envelope: %w: missing room or origin", domain.ErrInvalidInput)
	}
	return env, nil
}
