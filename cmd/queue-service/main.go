package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/ticketing/internal/config"
	"qms/ticketing/internal/httpapi"
	"qms/ticketing/internal/platform"
	"qms/ticketing/internal/telemetry"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	p, err := platform.Open(context.Background(), cfg, "queue-service")
	if err != nil {
		log.Fatalf("platform: %v", err)
	}
	defer p.Close()

	if cfg.CatalogFile != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.Seed(ctx, cfg.CatalogFile)
		cancel()
		if err != nil {
			log.Fatalf("seed catalog: %v", err)
		}
		log.Printf("catalog seeded from %s", cfg.CatalogFile)
	}

	engine := p.Engine(cfg)
	handler := httpapi.NewHandler(engine, httpapi.Options{})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		StationPerMinute: cfg.StationRateLimitPerMinute,
		StationBurst:     cfg.StationRateLimitBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(handler.Routes())), "queue-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Roll the day over promptly even when no console is active.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := engine.EnsureDay(ctx); err != nil {
				log.Printf("day rollover error: %v", err)
			}
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
