package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// RabbitRelay fans envelopes out through a fanout exchange. Each process
// consumes from its own exclusive, auto-deleted queue.
type RabbitRelay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   logging.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewRabbitRelay(uri, exchange string, logger logging.Logger) (*RabbitRelay, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	); err != nil {
		_ = multierr.Combine(ch.Close(), conn.Close())
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitRelay{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (r *RabbitRelay) Publish(ctx context.Context, env Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.channel.PublishWithContext(ctx,
		r.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			AppId:        env.Origin,
			Body:         data,
		},
	); err != nil {
		return fmt.Errorf("rabbitmq publish to %s: %w", r.exchange, err)
	}
	return nil
}

func (r *RabbitRelay) Subscribe(_ context.Context, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, err := r.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare relay queue: %w", err)
	}

	if err := r.channel.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to %s: %w", r.exchange, err)
	}

	msgs, err := r.channel.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for d := range msgs {
			env, err := decode(d.Body)
			if err != nil {
				r.logger.Warn(logging.RabbitMQ, logging.Subscription, "dropping malformed envelope", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
				continue
			}
			h(env)
		}
	}()
	return nil
}

func (r *RabbitRelay) Close() error {
	err := multierr.Combine(r.channel.Close(), r.conn.Close())
	r.wg.Wait()
	return err
}
