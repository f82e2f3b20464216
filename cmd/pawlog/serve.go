package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/api"
	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/config"
	"github.com/rpattn/pawlog/internal/db"
	"github.com/rpattn/pawlog/internal/graphql"
	"github.com/rpattn/pawlog/internal/middleware"
	"github.com/rpattn/pawlog/internal/pets"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/repository"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
}

const sessionPurgeInterval = time.Hour

func serve(parent context.Context, cfg config.Config, logger *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateOnStart {
		if err := db.RunMigrations(cfg.Database, db.Up, logger); err != nil {
			return err
		}
	}

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	userRepo := repository.NewUserRepository(conn.Pool)
	sessionRepo := repository.NewSessionRepository(conn.Pool)
	profileRepo := repository.NewProfileRepository(conn.Pool)
	petRepo := repository.NewPetRepository(conn.Pool)
	recordRepo := repository.NewHealthRecordRepository(conn.Pool)

	stats, closeStats := newStatsStore(cfg.Redis, logger)
	defer closeStats()

	if cfg.Quota.BypassLimits {
		logger.Warn("pet quota limits are bypassed for every user; never enable this in production")
	}
	guard := quota.NewGuard(profileRepo, petRepo,
		quota.WithBypass(cfg.Quota.BypassLimits),
		quota.WithStats(stats),
		quota.WithLogger(logger.Named("quota")),
	)

	authService := auth.NewService(userRepo, sessionRepo,
		auth.WithSessionTTL(cfg.Auth.SessionTTL),
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithHashCost(cfg.Auth.BcryptCost),
		auth.WithLogger(logger.Named("auth")),
	)
	petService := pets.NewService(petRepo, recordRepo, guard, logger.Named("pets"))
	recordService := records.NewService(recordRepo, petService, guard, logger.Named("records"))

	limiter := middleware.NewLimiterStore(cfg.RateLimit.RPS, cfg.RateLimit.Burst,
		middleware.WithIdleTTL(cfg.RateLimit.IdleTTL))
	janitorDone := limiter.StartJanitor(ctx)

	resolver := graphql.NewResolver(petService, recordService, guard, profileRepo, logger.Named("graphql"))

	router := api.NewRouter(api.Deps{
		Auth:              authService,
		Profiles:          profileRepo,
		Pets:              petService,
		Records:           recordService,
		Quota:             guard,
		DB:                conn,
		Summaries:         recordRepo,
		Limiter:           limiter,
		Logger:            logger,
		ExposeResetTokens: cfg.Log.Development,
		OperatorToken:     cfg.Auth.OperatorToken,
		GraphQL:           graphql.NewHandler(resolver),
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go purgeSessions(ctx, authService, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	stop()
	<-janitorDone
	logger.Info("server exited")
	return nil
}

// newStatsStore picks Redis when configured and reachable, in-memory otherwise.
func newStatsStore(cfg config.RedisConfig, logger *zap.Logger) (quota.StatsStore, func()) {
	if !cfg.Enabled {
		return quota.NewMemoryStatsStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, keeping quota stats in memory", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = rdb.Close()
		return quota.NewMemoryStatsStore(), func() {}
	}
	logger.Info("quota stats stored in redis", zap.String("addr", cfg.Addr))
	store := quota.NewRedisStatsStore(rdb,
		quota.WithStatsPrefix(cfg.StatsPrefix),
		quota.WithStatsTTL(cfg.StatsTTL),
		quota.WithStatsTrackPrincipals(cfg.TrackPrincipals),
	)
	return store, func() { _ = rdb.Close() }
}

func purgeSessions(ctx context.Context, svc *auth.Service, logger *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpiredSessions(ctx)
			if err != nil {
				logger.Warn("purge expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", zap.Int64("count", n))
			}
		}
	}
}
