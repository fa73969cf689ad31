package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/gowompi/handler"
	"github.com/mstgnz/gowompi/infra/config"
	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/infra/middle"
	"github.com/mstgnz/gowompi/infra/opensearch"
	"github.com/mstgnz/gowompi/infra/storage"
	"github.com/mstgnz/gowompi/provider"
	"github.com/mstgnz/gowompi/provider/wompi"
	"github.com/mstgnz/gowompi/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load Config Error: %v", err)
	}

	// OpenSearch is optional: the service runs without it
	var openSearchLogger *opensearch.Logger
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
		}
	}

	if openSearchLogger != nil {
		logger.InitGlobalLogger(openSearchLogger, cfg.LoggingLevel)
	} else {
		logger.InitGlobalLogger(nil, cfg.LoggingLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := newTokenCache(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize token cache", err, logger.LogContext{
			Fields: map[string]any{"backend": cfg.TokenCache},
		})
	}
	defer closeCache()

	if purger, ok := cache.(provider.Purger); ok {
		go storage.RunPurger(ctx, purger, storage.DefaultPurgeInterval)
	}

	opts := []wompi.Option{
		wompi.WithCache(cache),
		wompi.WithTimeout(cfg.HTTPTimeout),
	}
	if openSearchLogger != nil {
		opts = append(opts, wompi.WithCallLogger(openSearchLogger))
	}
	if cfg.EnableCircuitBreaker {
		opts = append(opts, wompi.WithBreaker())
	}

	client, err := wompi.New(wompi.Credentials{
		AuthURL:       cfg.WompiAuthURL,
		APIURL:        cfg.WompiAPIURL,
		ClientID:      cfg.WompiClientID,
		ClientSecret:  cfg.WompiClientSecret,
		WebhookSecret: cfg.WompiWebhookSecret,
	}, opts...)
	if err != nil {
		logger.Fatal("Failed to create Wompi client", err)
	}

	var callsHandler *handler.CallsHandler
	if openSearchLogger != nil {
		callsHandler = handler.NewCallsHandler(openSearchLogger)
	} else {
		callsHandler = handler.NewCallsHandler(nil)
	}

	rateLimiter := middle.NewRateLimiter(cfg.RateLimitPerMinute)
	defer rateLimiter.Stop()

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middle.RequestIDMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // Preflight cache time (second)
	}))

	if cfg.APIKey == "" {
		logger.Warn("API_KEY is not set, /v1 routes are disabled")
	}

	router.Routes(r, router.Dependencies{
		Wompi:              handler.NewWompiHandler(client, !cfg.IsProduction()),
		Calls:              callsHandler,
		Health:             handler.NewHealthHandler(client, cache, cfg.TokenCache, openSearchLogger != nil, cfg.Environment),
		APIKey:             cfg.APIKey,
		WebhookIPWhitelist: cfg.WebhookIPWhitelist,
		RateLimiter:        rateLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running on "+cfg.Port, logger.LogContext{
		Fields: map[string]any{
			"environment": cfg.Environment,
			"token_cache": cfg.TokenCache,
			"breaker":     cfg.EnableCircuitBreaker,
			"opensearch":  openSearchLogger != nil,
		},
	})

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// newTokenCache builds the configured token cache and its cleanup func
func newTokenCache(ctx context.Context, cfg *config.AppConfig) (provider.TokenCache, func(), error) {
	switch cfg.TokenCache {
	case config.CacheSQLite:
		cache, err := storage.NewSQLiteTokenCache(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return cache, func() { _ = cache.Close() }, nil
	case config.CachePostgres:
		cache, err := storage.NewPostgresTokenCache(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil
	default:
		return provider.NewInMemoryTokenCache(16), func() {}, nil
	}
}
