package api

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"github.com/hilthontt/chorus/internal/infrastructure/credentials"
	"github.com/hilthontt/chorus/internal/infrastructure/logging"
	"github.com/hilthontt/chorus/internal/infrastructure/metrics"
	"github.com/hilthontt/chorus/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/chorus/internal/presentation/handler/health"
	membersHandler "github.com/hilthontt/chorus/internal/presentation/handler/members"
	messagesHandler "github.com/hilthontt/chorus/internal/presentation/handler/messages"
	presenceHandler "github.com/hilthontt/chorus/internal/presentation/handler/presence"
	roomsHandler "github.com/hilthontt/chorus/internal/presentation/handler/rooms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
)

type Handlers struct {
	Health   *healthHandler.Handler
	Messages *messagesHandler.Handler
	Members  *membersHandler.Handler
	Presence *presenceHandler.Handler
	Rooms    *roomsHandler.Handler
}

type Application struct {
	config      configs.Config
	handlers    Handlers
	verifier    credentials.Verifier
	ratelimiter ratelimiter.Limiter
	metrics     *metrics.Metrics
	logger      logging.Logger

	onShutdown []func(context.Context) error
}

func NewApplication(
	config configs.Config,
	handlers Handlers,
	verifier credentials.Verifier,
	ratelimiter ratelimiter.Limiter,
	metrics *metrics.Metrics,
	logger logging.Logger,
) *Application {
	return &Application{
		config:      config,
		handlers:    handlers,
		verifier:    verifier,
		ratelimiter: ratelimiter,
		metrics:     metrics,
		logger:      logger,
	}
}

// OnShutdown registers fn to run after the HTTP server has drained, in
// registration order.
func (app *Application) OnShutdown(fn func(context.Context) error) {
	app.onShutdown = append(app.onShutdown, fn)
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(app.enableCors)
	r.Use(app.loggerMiddleware)
	r.Use(app.prometheusMiddleware)

	// no timeout here: the connection outlives the request
	r.Get("/ws", app.handlers.Rooms.ConnectHandler)

	r.Handle("/metrics", app.metrics.Handler())
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(app.rateLimiterMiddleware)

		r.Get("/health", app.handlers.Health.GetHealth)
		r.Get("/healthz", app.handlers.Health.GetHealth)
		r.Get("/ready", app.handlers.Health.GetHealth)
		r.Get("/live", app.handlers.Health.GetHealth)

		r.Group(func(r chi.Router) {
			r.Use(app.authenticate)

			r.Route("/spaces/{spaceId}", func(r chi.Router) {
				r.Post("/channels/{channelId}/messages", app.handlers.Messages.CreateMessageHandler)
				r.Delete("/channels/{channelId}/messages/{messageId}", app.handlers.Messages.DeleteMessageHandler)

				r.Put("/members/{userId}/roles/{roleId}", app.handlers.Members.AssignRoleHandler)
				r.Delete("/members/{userId}", app.handlers.Members.RemoveMemberHandler)
			})

			r.Get("/users/{userId}/presence", app.handlers.Presence.GetPresenceHandler)
			r.Get("/rooms/{room}", app.handlers.Rooms.GetRoomHandler)
		})
	})

	return otelhttp.NewHandler(r, "chorus.http")
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  app.config.HTTP.IdleTimeout,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"signal": s.String(),
		})
		app.handlers.Health.SetHealthy(false)

		err := srv.Shutdown(ctx)
		for _, fn := range app.onShutdown {
			err = multierr.Append(err, fn(ctx))
		}
		shutdown <- err
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	return nil
}
