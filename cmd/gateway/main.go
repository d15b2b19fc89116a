package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"runtime"

	"github.com/hilthontt/chorus/internal/application/delivery"
	"github.com/hilthontt/chorus/internal/application/membership"
	"github.com/hilthontt/chorus/internal/application/messaging"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/credentials"
	"github.com/hilthontt/chorus/internal/infrastructure/eventbus"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/infrastructure/metrics"
	"github.com/hilthontt/chorus/internal/infrastructure/permissions"
	"github.com/hilthontt/chorus/internal/infrastructure/presence"
	"github.com/hilthontt/chorus/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/chorus/internal/infrastructure/relay"
	"github.com/hilthontt/chorus/internal/infrastructure/repository"
	"github.com/hilthontt/chorus/internal/infrastructure/snowflake"
	"github.com/hilthontt/chorus/internal/infrastructure/tracing"
	"github.com/hilthontt/chorus/internal/infrastructure/ws"
	"github.com/hilthontt/chorus/internal/presentation/api"
	"github.com/hilthontt/chorus/internal/presentation/handler/health"
	"github.com/hilthontt/chorus/internal/presentation/handler/members"
	"github.com/hilthontt/chorus/internal/presentation/handler/messages"
	presenceHandler "github.com/hilthontt/chorus/internal/presentation/handler/presence"
	"github.com/hilthontt/chorus/internal/presentation/handler/rooms"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// directory is what both the in-memory and the postgres stores provide.
type directory interface {
	domain.MembershipRepository
	domain.ChannelDirectory
	delivery.SpaceLookup
	repository.Seeder
}

func main() {
	cfg, err := configs.Load(configs.DetermineConfigPath())
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&cfg.Logger)
	if err := run(cfg, logger); err != nil {
		logger.Fatal(logging.General, logging.Startup, err.Error(), nil)
	}
}

func run(cfg *configs.Config, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.Setup(ctx, cfg.Tracing, cfg.Node)
	if err != nil {
		return err
	}

	m := metrics.NewWithRuntime()

	ids, err := snowflake.New(snowflake.Options{NodeID: cfg.Node.ID, Issued: m.IdentifiersIssued})
	if err != nil {
		return err
	}

	dir, messageStore, closeStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := repository.Seed(ctx, dir, cfg.Fixtures); err != nil {
		return fmt.Errorf("seed fixtures: %w", err)
	}

	verifier, err := credentials.NewJWT(credentials.Options{
		Secret: []byte(cfg.Auth.Secret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TTL,
	})
	if err != nil {
		return err
	}

	bus := eventbus.New(logger,
		eventbus.WithMetrics(m),
		eventbus.WithTracer(tracing.GetTracer("chorus/eventbus")),
	)
	defer bus.Close()

	engine := permissions.NewEngine(dir, permissions.WithCache(cfg.Permissions.CacheSize, cfg.Permissions.CacheTTL))
	// Cached masks must be gone before delivery reacts to the same event.
	engine.RegisterInvalidation(bus)

	rl, err := relay.New(cfg.Relay, cfg.Node.Name, logger)
	if err != nil {
		return err
	}

	store, err := presenceStore(cfg.Presence)
	if err != nil {
		return err
	}
	tracker := presence.NewTracker(presence.Options{
		Store:     store,
		Publisher: bus,
		Logger:    logger,
		IdleAfter: cfg.Presence.IdleAfter,
		Sweep:     cfg.Presence.Sweep,
	})

	messageService := messaging.NewService(messaging.Options{
		Guard:    engine,
		Channels: dir,
		Messages: messageStore,
		IDs:      ids,
		Events:   bus,
		Logger:   logger,
	})
	memberService := membership.NewService(dir, engine, bus, logger)

	gateway, err := ws.NewGateway(ws.Options{
		Node:     cfg.Node.Name,
		Config:   cfg.Gateway,
		Verifier: verifier,
		Guard:    engine,
		Channels: dir,
		Relay:    rl,
		Presence: tracker,
		Actions:  messaging.NewActions(messageService),
		Metrics:  m,
		Logger:   logger,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(cfg.HTTP.AllowedOrigins, "*") || lo.Contains(cfg.HTTP.AllowedOrigins, origin)
		},
	})
	if err != nil {
		return err
	}

	delivery.Register(bus, gateway, dir)

	app := api.NewApplication(
		*cfg,
		api.Handlers{
			Health:   health.NewHandler(gateway),
			Messages: messages.NewHandler(messageService),
			Members:  members.NewHandler(memberService),
			Presence: presenceHandler.NewHandler(tracker),
			Rooms:    rooms.NewHandler(gateway),
		},
		verifier,
		ratelimiter.New(ratelimiter.Options{
			MaxRatePerSecond: cfg.HTTP.RequestsPerSecond,
			MaxBurst:         cfg.HTTP.RequestBurst,
		}),
		m,
		logger,
	)
	app.OnShutdown(gateway.Stop)
	app.OnShutdown(func(context.Context) error { return rl.Close() })
	app.OnShutdown(shutdownTracer)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("gateway", expvar.Func(func() any {
		return gateway.Stats()
	}))

	if err := gateway.Start(ctx); err != nil {
		return err
	}

	logger.Info(logging.General, logging.Startup, "node ready", map[logging.ExtraKey]any{
		logging.NodeID: cfg.Node.ID,
		logging.Driver: cfg.Relay.Driver,
		"node_name":    cfg.Node.Name,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tracker.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return app.Run(app.Mount())
	})

	return g.Wait()
}

// openStores returns the membership directory and message store selected by
// postgres.dsn.
func openStores(ctx context.Context, cfg *configs.Config, logger logging.Logger) (directory, domain.MessageRepository, func(), error) {
	if cfg.Postgres.DSN == "" {
		return repository.NewDirectory(), repository.NewMessageRepository(cfg.MessageStore.Capacity), func() {}, nil
	}

	db, err := repository.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	logger.Info(logging.Postgres, logging.Migration, "schema applied", nil)

	store := repository.NewPostgresStore(db)
	return store, store, func() { _ = db.Close() }, nil
}

func presenceStore(cfg configs.PresenceConfig) (presence.Store, error) {
	if cfg.Store != "redis" {
		return presence.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "presence.redis_url", Reason: err.Error()}
	}
	return presence.NewRedisStore(redis.NewClient(opts), cfg.TTL), nil
}
