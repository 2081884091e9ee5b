package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"universalis-alerts/internal/cache"
	"universalis-alerts/internal/config"
	"universalis-alerts/internal/discord"
	"universalis-alerts/internal/handler"
	"universalis-alerts/internal/middleware"
	"universalis-alerts/internal/pipeline"
	"universalis-alerts/internal/repository"
	"universalis-alerts/internal/router"
	"universalis-alerts/internal/service"
	"universalis-alerts/internal/stream"
	"universalis-alerts/internal/trigger"
	"universalis-alerts/internal/xivapi"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Universalis alerts...")

	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	alertRepo, err := openAlertRepository(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize alert store: %v", err)
	}
	defer alertRepo.Close()

	matcher := service.NewAlertMatcher(alertRepo, service.VersionWindow{
		Min: cfg.Trigger.MinVersion,
		Max: cfg.Trigger.MaxVersion,
	}, cfg.Database.LookupTimeout)
	window := matcher.Window()
	if err := window.Validate(); err != nil {
		log.Fatalf("Invalid trigger configuration: %v", err)
	}
	log.Printf("Evaluating trigger versions %d..%d", window.Min, window.Max)
	if !window.Contains(trigger.SchemaVersion) {
		log.Printf("Warning: trigger version window excludes current schema version %d", trigger.SchemaVersion)
	}

	nameCache := openCache(&cfg.Cache)
	defer nameCache.Close()

	names := xivapi.NewClient(xivapi.Config{
		BaseURL:   cfg.Outbound.XIVAPIBaseURL,
		Timeout:   cfg.Outbound.XIVAPITimeout,
		RateLimit: cfg.Outbound.XIVAPIRateLimit,
		CacheTTL:  cfg.Cache.TTL,
	}, nameCache)

	notifier := discord.NewNotifier(discord.Config{
		Timeout:       cfg.Outbound.DiscordTimeout,
		MarketBaseURL: cfg.Outbound.UniversalisBaseURL,
	}, names)

	alertPipeline := pipeline.New(matcher, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := stream.NewClient(stream.Config{
		URL:                 cfg.Stream.URL,
		Channel:             cfg.Stream.Channel,
		HandshakeTimeout:    cfg.Stream.HandshakeTimeout,
		PingInterval:        cfg.Stream.PingInterval,
		ReconnectMaxElapsed: cfg.Stream.ReconnectMaxElapsed,
	})
	if err := feed.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to stream: %v", err)
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = newStatusServer(cfg, alertRepo, alertPipeline)
		go func() {
			log.Printf("Status server listening on %s", cfg.Server.Address())
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		alertPipeline.Run(ctx, feed.Messages(ctx))
		close(done)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
	case <-done:
		if err := feed.Err(); err != nil {
			log.Printf("Stream closed: %v", err)
			exitCode = 1
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("Timed out waiting for in-flight alerts")
	}
	feed.Close()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}

	s := alertPipeline.Stats()
	log.Printf("Stopped: received=%d matches=%d dispatched=%d dispatch_errors=%d",
		s.Received, s.Matches, s.Dispatched, s.DispatchErrors)
	fmt.Println("Goodbye!")

	if exitCode != 0 {
		alertRepo.Close()
		nameCache.Close()
		os.Exit(exitCode)
	}
}

func openAlertRepository(cfg *config.DatabaseConfig) (repository.AlertRepository, error) {
	switch cfg.Type {
	case "mongodb", "mongo":
		repo, err := repository.NewMongoDBAlertRepository(cfg.URL, cfg.MongoDatabase, cfg.MongoCollection, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		log.Println("MongoDB alert repository initialized")
		return repo, nil
	case "postgres", "postgresql":
		repo, err := repository.NewPostgresAlertRepository(cfg.URL, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		log.Println("PostgreSQL alert repository initialized")
		return repo, nil
	case "sqlite":
		repo, err := repository.NewSQLiteAlertRepository(strings.TrimPrefix(cfg.URL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		log.Println("SQLite alert repository initialized")
		return repo, nil
	default: // mysql
		dsn, err := repository.MySQLDSN(cfg.URL)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewMySQLAlertRepository(dsn, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		log.Println("MySQL alert repository initialized")
		return repo, nil
	}
}

func openCache(cfg *config.CacheConfig) cache.Cache {
	if cfg.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddress(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err == nil {
			return redisCache
		}
		log.Printf("Warning: Redis cache unavailable, using memory cache: %v", err)
	}
	return cache.NewMemoryCache()
}

func newStatusServer(cfg *config.Config, store handler.Pinger, stats handler.StatsSource) *http.Server {
	r := router.New(router.Config{
		Handler:        handler.New(cfg.App.Name, store),
		StatsHandler:   handler.NewStatsHandler(stats, cfg.Database.Type),
		AuthMiddleware: middleware.NewAPIKeyMiddleware(cfg.Server.APIKeys),
	})

	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
}
