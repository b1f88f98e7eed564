package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecotrace-api/internal/cache"
	"ecotrace-api/internal/config"
	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/geocode"
	"ecotrace-api/internal/handler"
	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/notify"
	"ecotrace-api/internal/repository"
	"ecotrace-api/internal/router"
	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()
	logger.Setup(cfg.App.Environment, cfg.App.LogLevel)
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).Msg("starting EcoTrace API")

	// Initialize document store based on config
	var store docstore.Store
	switch cfg.DocStore.Type {
	case "mongodb":
		mongoStore, err := docstore.NewMongoStore(cfg.DocStore.MongoURI, cfg.DocStore.MongoDatabase, cfg.DocStore.MongoCollection)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize MongoDB document store")
		}
		store = mongoStore
	case "postgres":
		pgStore, err := docstore.NewPostgresStore(cfg.DocStore.PostgresDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL document store")
		}
		store = pgStore
	case "memory":
		store = docstore.NewMemoryStore()
		log.Warn().Msg("using in-memory document store, data is lost on exit")
	default: // sqlite
		sqliteStore, err := docstore.NewSQLiteStore(cfg.DocStore.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize SQLite document store")
		}
		store = sqliteStore
	}
	defer store.Close()
	log.Info().Str("type", cfg.DocStore.Type).Msg("document store initialized")

	// Initialize Redis client (optional, consumer session tokens live there)
	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" || cfg.Auth.TokenKeyPrefix != "" {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis connection failed, session tokens and shared cache disabled")
		} else {
			redisClient = client
			defer redisClient.Close()
			log.Info().Msg("Redis client initialized")
		}
	}

	// Cache for organization names and geocoding results
	var sharedCache cache.Cache
	if cfg.Cache.Type == "redis" && redisClient != nil {
		sharedCache = cache.NewRedisCache(redisClient, "")
	} else {
		sharedCache = cache.NewMemoryCache(time.Minute)
	}
	defer sharedCache.Close()

	// Organization directory
	var orgs repository.OrganizationRepository = repository.NewDocOrganizationRepository(store)
	if cfg.Organizations.Source == "mysql" {
		mysqlDB, err := repository.OpenMySQL(cfg.Organizations.DSN())
		if err != nil {
			log.Warn().Err(err).Msg("MySQL organization directory unavailable, falling back to document store")
		} else {
			defer mysqlDB.Close()
			orgs = repository.NewMySQLOrganizationRepository(mysqlDB)
			log.Info().Msg("MySQL organization directory initialized")
		}
	}
	orgDirectory := service.NewCachedOrganizationDirectory(orgs, sharedCache, cfg.Cache.TTL)

	// Rejection notifier
	var notifier service.RejectionNotifier
	if cfg.Notify.Configured() {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			User:     cfg.Notify.SMTPUser,
			Password: cfg.Notify.SMTPPass,
			From:     cfg.Notify.From,
		})
		log.Info().Str("host", cfg.Notify.SMTPHost).Msg("SMTP notifier initialized")
	} else {
		notifier = notify.NewLogNotifier()
		log.Info().Msg("SMTP not configured, rejection notices are logged only")
	}

	// Reverse geocoder (optional)
	var geocoder service.Geocoder = geocode.Noop{}
	if cfg.Geocode.Enabled {
		geocoder = geocode.NewNominatim(geocode.Config{
			BaseURL:   cfg.Geocode.BaseURL,
			UserAgent: cfg.Geocode.UserAgent,
			Timeout:   cfg.Geocode.Timeout,
			CacheTTL:  cfg.Geocode.CacheTTL,
		}, sharedCache)
	}

	// Initialize services
	registry := service.NewRegistry(store, cfg.App.PublicBaseURL)
	registration := service.NewRegistration(store)
	recyclers := service.NewRecyclerService(store, geocoder)
	recyclers.SetOrganizationCache(orgDirectory)
	recycling := service.NewRecyclingService(store, notifier)
	matcher := service.NewMatcher(store, orgDirectory, cfg.Matching.MaxDistanceKm)
	stats := service.NewStatsService(store)

	var tokens middleware.TokenValidator
	if redisClient != nil {
		tokens = service.NewTokenStore(redisClient, cfg.Auth.TokenKeyPrefix)
	}

	sweeper := service.NewSweepScheduler(registration, service.SweepConfig{Interval: cfg.Sweep.Interval})
	if cfg.Sweep.Enabled {
		sweeper.Start()
	}

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Version, handler.ReadinessCheck{
		Name: "docstore",
		Check: func(ctx context.Context) error {
			_, err := store.Get(ctx, "system/readiness")
			return err
		},
	})

	// Create auth middleware with injected dependencies (NO GLOBALS!)
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Tokens:      tokens,
		StaffKeys:   cfg.Auth.StaffKeys(),
		PublicPaths: router.PublicPaths,
	})

	// Create router
	r := router.New(router.Config{
		Handler:             healthHandler,
		ProductHandler:      handler.NewProductHandler(registry),
		RegistrationHandler: handler.NewRegistrationHandler(registration),
		ConsumerHandler:     handler.NewConsumerHandler(registry, registration, matcher, recycling),
		RecyclerHandler:     handler.NewRecyclerHandler(recyclers, recycling),
		RecyclingHandler:    handler.NewRecyclingHandler(recycling),
		AdminHandler:        handler.NewAdminHandler(stats, sweeper, cfg.DocStore.Type),
		AuthMiddleware:      authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sweeper.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
