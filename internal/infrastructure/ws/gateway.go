package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/credentials"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/infrastructure/metrics"
	"github.com/hilthontt/chorus/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chorus/internal/infrastructure/relay"
	"github.com/hilthontt/chorus/internal/infrastructure/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const relayBacklog = 1024

var relayTracer = tracing.GetTracer("github.com/hilthontt/chorus/ws")

var (
	ErrNotStarted     = errors.New("gateway not started")
	ErrAlreadyStarted = errors.New("gateway already started")
	ErrRelayBacklog   = errors.New("relay outbound queue full")
)

// PresenceHooks receives connection lifecycle and heartbeat signals.
type PresenceHooks interface {
	Connected(ctx context.Context, identity domain.Identity) error
	Disconnected(ctx context.Context, identity domain.Identity) error
	Heartbeat(ctx context.Context, identity domain.Identity, status domain.PresenceStatus) error
	// KeepAlive runs on every pong, so presence outlives idle but open
	// connections.
	KeepAlive(ctx context.Context, identity domain.Identity) error
}

var ErrUnknownAction = errors.New("unknown action")

// ActionHandler runs client actions the gateway does not handle itself. It
// returns ErrUnknownAction for actions it does not know.
type ActionHandler interface {
	HandleAction(ctx context.Context, identity domain.Identity, action string, data json.RawMessage) (any, error)
}

type Options struct {
	// Node names this process in logs. Relay envelopes carry it plus a
	// per-process suffix, so two processes sharing a name still see each
	// other's broadcasts.
	Node       string
	Config     configs.GatewayConfig
	Verifier   credentials.Verifier
	Guard      Guard
	Channels   domain.ChannelDirectory
	Authorizer RoomAuthorizer
	Relay      relay.Relay
	Presence   PresenceHooks
	Actions    ActionHandler
	Limiter    ratelimiter.Limiter
	Metrics    *metrics.Metrics
	Logger     logging.Logger
	// RevokeOn lists events that, delivered to a user room, make the
	// gateway re-check that user's rooms.
	RevokeOn    []string
	CheckOrigin func(r *http.Request) bool
}

// Gateway accepts websocket connections, tracks their room subscriptions and
// fans room broadcasts out locally and across the relay.
type Gateway struct {
	node       string
	origin     string
	cfg        configs.GatewayConfig
	verifier   credentials.Verifier
	guard      Guard
	channels   domain.ChannelDirectory
	authorizer RoomAuthorizer
	relay      relay.Relay
	presence   PresenceHooks
	actions    ActionHandler
	limiter    ratelimiter.Limiter
	metrics    *metrics.Metrics
	logger     logging.Logger
	revokeOn   []string

	upgrader websocket.Upgrader
	rooms    *RoomManager
	outbound chan relay.Envelope

	mu      sync.RWMutex
	clients map[string]*Client
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	group   *errgroup.Group
	conns   sync.WaitGroup
}

func NewGateway(opts Options) (*Gateway, error) {
	if opts.Verifier == nil {
		return nil, &domain.ConfigurationError{Field: "gateway.verifier", Reason: "a credential verifier is required"}
	}
	if opts.Guard == nil || opts.Channels == nil {
		return nil, &domain.ConfigurationError{Field: "gateway.guard", Reason: "a permission guard and channel directory are required"}
	}
	if opts.Node == "" {
		return nil, &domain.ConfigurationError{Field: "node.name", Reason: "must be set"}
	}

	cfg := withDefaults(opts.Config)
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, &domain.ConfigurationError{Field: "gateway.ping_period", Reason: "must be shorter than gateway.pong_wait"}
	}

	g := &Gateway{
		node:       opts.Node,
		origin:     opts.Node + "/" + uuid.NewString(),
		cfg:        cfg,
		verifier:   opts.Verifier,
		guard:      opts.Guard,
		channels:   opts.Channels,
		authorizer: opts.Authorizer,
		relay:      opts.Relay,
		presence:   opts.Presence,
		actions:    opts.Actions,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		revokeOn:   opts.RevokeOn,
		rooms:      NewRoomManager(),
		outbound:   make(chan relay.Envelope, relayBacklog),
		clients:    make(map[string]*Client),
	}
	if g.authorizer == nil {
		g.authorizer = AllowAll
	}
	if g.metrics == nil {
		g.metrics = metrics.NewNop()
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}
	if g.revokeOn == nil {
		g.revokeOn = []string{string(domain.MemberRolesUpdatedEvent), string(domain.MemberRemovedEvent)}
	}
	if g.limiter == nil && cfg.FramesPerSecond > 0 {
		g.limiter = ratelimiter.New(ratelimiter.Options{
			MaxRatePerSecond: cfg.FramesPerSecond,
			MaxBurst:         cfg.FrameBurst,
		})
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{bearerProtocol},
		CheckOrigin:     checkOrigin,
	}

	return g, nil
}

func withDefaults(cfg configs.GatewayConfig) configs.GatewayConfig {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return cfg
}

// Start subscribes to the relay and starts the outbound relay pump.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ctx != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	if g.relay != nil {
		if err := g.relay.Subscribe(gctx, g.receive); err != nil {
			cancel()
			return fmt.Errorf("subscribe to relay: %w", err)
		}
		group.Go(func() error {
			g.pumpRelay(gctx)
			return nil
		})
	}

	g.ctx, g.cancel, g.group = gctx, cancel, group

	g.logger.Info(logging.Gateway, logging.Startup, "gateway started", map[logging.ExtraKey]any{
		logging.NodeID: g.node,
	})
	return nil
}

// Stop closes every connection with 1001 and waits for the pumps, bounded
// by ctx.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if g.ctx == nil {
		g.mu.Unlock()
		return ErrNotStarted
	}
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	cancel, group := g.cancel, g.group
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	cancel()

	done := make(chan error, 1)
	go func() {
		err := group.Wait()
		g.conns.Wait()
		done <- err
	}()

	var err error
	select {
	case werr := <-done:
		err = multierr.Append(err, werr)
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for connections: %w", ctx.Err()))
	}

	g.logger.Info(logging.Gateway, logging.Shutdown, "gateway stopped", map[logging.ExtraKey]any{
		logging.NodeID: g.node,
	})
	return err
}

// acquire counts a new connection attempt, or reports false once the
// gateway is not running. The count and the stopped flag share g.mu so Stop
// never waits on a connection it cannot see.
func (g *Gateway) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil || g.stopped {
		return false
	}
	g.conns.Add(1)
	return true
}

func (g *Gateway) baseContext() context.Context {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ctx
}

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{Connections: len(g.clients), Rooms: g.rooms.Count()}
}

// Subscribers returns how many local connections joined room.
func (g *Gateway) Subscribers(room string) int {
	return len(g.rooms.Members(room))
}

// Broadcast delivers payload as event to every subscriber of room on this
// process, then queues it for other processes. Delivery is at most once.
func (g *Gateway) Broadcast(ctx context.Context, room, event string, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	g.deliverLocal(ctx, room, event, raw)

	if g.relay == nil {
		return nil
	}

	env := relay.Envelope{
		Origin:  g.origin,
		Room:    room,
		Event:   event,
		Payload: raw,
		SentAt:  time.Now().UTC(),
		Trace:   tracing.Inject(ctx),
	}
	select {
	case g.outbound <- env:
		return nil
	default:
		g.metrics.RelayMessages.WithLabelValues("outbound", "dropped").Inc()
		return &domain.TransientDeliveryError{Room: room, Err: ErrRelayBacklog}
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

func (g *Gateway) pumpRelay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-g.outbound:
			if err := g.relay.Publish(ctx, env); err != nil {
				g.metrics.RelayMessages.WithLabelValues("outbound", "failed").Inc()
				g.logger.Warn(logging.Relay, logging.Publish, "relay publish failed", map[logging.ExtraKey]any{
					logging.Room:         env.Room,
					logging.Event:        env.Event,
					logging.ErrorMessage: err.Error(),
				})
				continue
			}
			g.metrics.RelayMessages.WithLabelValues("outbound", "published").Inc()
		}
	}
}

// receive handles envelopes from the relay. Envelopes this node published
// were already delivered locally; the rest are delivered locally only and
// never published again.
func (g *Gateway) receive(env relay.Envelope) {
	if env.Origin == g.origin {
		g.metrics.RelayMessages.WithLabelValues("inbound", "own").Inc()
		return
	}
	g.metrics.RelayMessages.WithLabelValues("inbound", "delivered").Inc()

	ctx := g.baseContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := relayTracer.Start(tracing.Extract(ctx, env.Trace), "relay.deliver", trace.WithAttributes(
		attribute.String("chorus.room", env.Room),
		attribute.String("chorus.event", env.Event),
		attribute.String("chorus.origin", env.Origin),
	))
	defer span.End()
	g.deliverLocal(ctx, env.Room, env.Event, env.Payload)
}

func (g *Gateway) deliverLocal(ctx context.Context, room, event string, payload json.RawMessage) {
	frame, err := json.Marshal(NewEvent(room, event, payload))
	if err != nil {
		g.logger.Error(logging.Gateway, logging.Delivery, "encode event frame", map[logging.ExtraKey]any{
			logging.Room:         room,
			logging.Event:        event,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	delivered, failed := g.rooms.BroadcastToRoom(room, frame)
	if delivered > 0 {
		g.metrics.Deliveries.WithLabelValues("delivered").Add(float64(delivered))
	}
	for _, derr := range failed {
		g.metrics.Deliveries.WithLabelValues("dropped").Inc()
		g.logger.Warn(logging.Gateway, logging.Delivery, "dropping slow connection", map[logging.ExtraKey]any{
			logging.ConnectionID: derr.ConnectionID,
			logging.Room:         derr.Room,
			logging.ErrorMessage: derr.Error(),
		})
		g.evict(derr.ConnectionID, CloseSlowConsumer, "slow consumer")
	}

	if slices.Contains(g.revokeOn, event) {
		if r, err := domain.ParseRoom(room); err == nil && r.Kind == domain.UserRoomKind {
			g.revoke(ctx, payload)
		}
	}
}

func (g *Gateway) evict(connectionID string, code int, reason string) {
	g.mu.RLock()
	c, ok := g.clients[connectionID]
	g.mu.RUnlock()
	if ok {
		c.close(code, reason)
	}
}

func (g *Gateway) clientsOf(userID string) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Client
	for _, c := range g.clients {
		if c.Identity.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// register adds c unless the gateway stopped after c was accepted.
func (g *Gateway) register(c *Client) bool {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return false
	}
	g.clients[c.ID] = c
	n := len(g.clients)
	g.mu.Unlock()

	g.metrics.ConnectionsActive.Set(float64(n))
	g.logger.Info(logging.Gateway, logging.Connection, "connection registered", map[logging.ExtraKey]any{
		logging.ConnectionID: c.ID,
		logging.UserID:       c.Identity.UserID,
	})

	if g.presence != nil {
		if err := g.presence.Connected(g.baseContext(), c.Identity); err != nil {
			g.logger.Warn(logging.Presence, logging.Connection, "presence connect failed", map[logging.ExtraKey]any{
				logging.UserID:       c.Identity.UserID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
	return true
}

func (g *Gateway) keepAlive(c *Client) {
	if g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteWait)
	defer cancel()
	if err := g.presence.KeepAlive(ctx, c.Identity); err != nil {
		g.logger.Warn(logging.Presence, logging.Heartbeat, "presence keep-alive failed", map[logging.ExtraKey]any{
			logging.UserID:       c.Identity.UserID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

// unregister discards every room of c; a reconnect starts from none.
func (g *Gateway) unregister(c *Client) {
	g.rooms.RemoveClient(c)

	g.mu.Lock()
	delete(g.clients, c.ID)
	n := len(g.clients)
	g.mu.Unlock()

	if g.limiter != nil {
		g.limiter.Forget(c.ID)
	}
	g.metrics.ConnectionsActive.Set(float64(n))
	g.metrics.RoomsActive.Set(float64(g.rooms.Count()))
	g.logger.Info(logging.Gateway, logging.Connection, "connection closed", map[logging.ExtraKey]any{
		logging.ConnectionID: c.ID,
		logging.UserID:       c.Identity.UserID,
	})

	if g.presence != nil {
		// the gateway context may already be cancelled during shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.presence.Disconnected(ctx, c.Identity); err != nil {
			g.logger.Warn(logging.Presence, logging.Connection, "presence disconnect failed", map[logging.ExtraKey]any{
				logging.UserID:       c.Identity.UserID,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

// reply queues a direct frame to c. A connection that cannot take it is
// torn down.
func (g *Gateway) reply(c *Client, msg *WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.enqueue(data); err != nil && !errors.Is(err, ErrConnectionClosed) {
		g.metrics.Deliveries.WithLabelValues("dropped").Inc()
		c.close(CloseSlowConsumer, "slow consumer")
	}
}
