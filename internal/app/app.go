package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/auth"
	"github.com/crewdesk/pulse-server/internal/broker"
	"github.com/crewdesk/pulse-server/internal/config"
	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/metrics"
	"github.com/crewdesk/pulse-server/internal/store"
	"github.com/crewdesk/pulse-server/internal/store/sqlite"
	transporthttp "github.com/crewdesk/pulse-server/internal/transport/http"
)

// App wires together core, storage and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	bridge          *broker.RedisBroker
	redisClient     *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	m := metrics.New()
	m.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	instanceID := uuid.NewString()

	var bridge *broker.RedisBroker
	var redisClient *redis.Client
	var hubBroker core.Broker
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		bridge = broker.NewRedis(redisClient, cfg.RedisChannel, instanceID, logger)
		hubBroker = bridge
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("event bridge enabled")
	}

	hub := core.NewHub(core.HubConfig{
		InstanceID: instanceID,
		Typing:     core.NewTypingStore(cfg.TypingTTL),
		Members:    st,
		Messages:   st,
		Broker:     hubBroker,
		Logger:     logger,
		Metrics:    m,
	})

	server := transporthttp.NewServer(hub, authService, st, m, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		bridge:          bridge,
		redisClient:     redisClient,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx, a.hub.HandleRemote); err != nil && ctx.Err() == nil {
				a.log.Error().Err(err).Msg("event bridge stopped")
			}
		}()
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
