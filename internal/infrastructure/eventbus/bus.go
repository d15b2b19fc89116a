package eventbus

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/infrastructure/metrics"
	"github.com/hilthontt/chorus/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, evt domain.Event) error

// ErrorReporter receives every isolated subscriber failure.
type ErrorReporter func(*domain.HandlerError)

type Option func(*Bus)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

func WithErrorReporter(r ErrorReporter) Option {
	return func(b *Bus) { b.report = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(b *Bus) { b.tracer = t }
}

type subscription struct {
	id         uint64
	subscriber string
	handler    Handler
}

// Bus dispatches domain events synchronously to in-process subscribers. It
// never crosses process boundaries.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventName][]*subscription
	nextID uint64
	closed bool

	logger  logging.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	report  ErrorReporter
}

func New(logger logging.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[domain.EventName][]*subscription),
		logger: logger,
		tracer: tracing.GetTracer("github.com/hilthontt/chorus/eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for events named name. Handlers run in registration
// order. The returned func removes the subscription and may be called more
// than once.
func (b *Bus) Subscribe(name domain.EventName, subscriber string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, subscriber: subscriber, handler: h}
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, sub.id) })
	}
}

func (b *Bus) remove(name domain.EventName, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	idx := slices.IndexFunc(subs, func(s *subscription) bool { return s.id == id })
	if idx < 0 {
		return
	}
	// copy-on-write: in-flight publishes keep iterating their snapshot
	next := slices.Delete(slices.Clone(subs), idx, idx+1)
	if len(next) == 0 {
		delete(b.subs, name)
		return
	}
	b.subs[name] = next
}

// On subscribes with a handler typed to one event variant. T must be a value
// event type from the domain package.
func On[T domain.Event](b *Bus, subscriber string, fn func(context.Context, T) error) func() {
	var zero T
	name := zero.Name()
	return b.Subscribe(name, subscriber, func(ctx context.Context, evt domain.Event) error {
		typed, ok := evt.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", evt, name)
		}
		return fn(ctx, typed)
	})
}

// Publish invokes every handler for evt on the calling goroutine. Handler
// failures are reported and logged but never returned: the mutation that
// produced evt has already committed.
func (b *Bus) Publish(ctx context.Context, evt domain.Event) {
	name := evt.Name()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		b.logger.Warn(logging.EventBus, logging.Publish, "event published after bus closed", map[logging.ExtraKey]any{
			logging.Event: string(name),
		})
		return
	}
	subs := b.subs[name]
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, "eventbus.publish", trace.WithAttributes(
		attribute.String("event.name", string(name)),
		attribute.Int("event.subscribers", len(subs)),
	))
	defer span.End()

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(name)).Inc()
	}

	for _, sub := range subs {
		if herr := b.dispatch(ctx, sub, evt); herr != nil {
			span.RecordError(herr)
			span.SetStatus(codes.Error, "subscriber failed")
			b.fail(herr)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *subscription, evt domain.Event) (herr *domain.HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &domain.HandlerError{Event: evt.Name(), Subscriber: sub.subscriber, Panic: r}
		}
	}()

	if err := sub.handler(ctx, evt); err != nil {
		return &domain.HandlerError{Event: evt.Name(), Subscriber: sub.subscriber, Err: err}
	}
	return nil
}

func (b *Bus) fail(herr *domain.HandlerError) {
	b.logger.Error(logging.EventBus, logging.Subscription, "event handler failed", map[logging.ExtraKey]any{
		logging.Event:        string(herr.Event),
		logging.Subscriber:   herr.Subscriber,
		logging.ErrorMessage: herr.Error(),
	})
	if b.metrics != nil {
		b.metrics.HandlerFailures.WithLabelValues(string(herr.Event)).Inc()
	}
	if b.report != nil {
		b.report(herr)
	}
}

// Subscribers returns how many handlers are registered for name.
func (b *Bus) Subscribers(name domain.EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Close drops every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[domain.EventName][]*subscription)
}
