package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/ticketing/internal/config"
	"qms/ticketing/internal/httpapi"
	"qms/ticketing/internal/hub"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/platform"
	"qms/ticketing/internal/telemetry"
)

type snapshotEnvelope struct {
	Type string          `json:"type"`
	Data []models.Ticket `json:"data"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("realtime-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	p, err := platform.Open(context.Background(), cfg, "realtime-service")
	if err != nil {
		log.Fatalf("platform: %v", err)
	}
	defer p.Close()

	engine := p.Engine(cfg)
	h := hub.New()
	relay := h.Relay(p.Bus)
	defer relay.Unsubscribe()

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		StationPerMinute: cfg.StationRateLimitPerMinute,
		StationBurst:     cfg.StationRateLimitBurst,
	})

	options := sockjs.DefaultOptions
	options.CheckOrigin = func(r *http.Request) bool {
		return originAllowed(cfg.AllowedOrigin, r.Header.Get("Origin"))
	}
	sockjsHandler := sockjs.NewHandler("/realtime", options, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		if payload, err := snapshot(engine); err != nil {
			log.Printf("snapshot error client=%s err=%v", client.ID, err)
		} else {
			_ = session.Send(string(payload))
		}

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			known, err := isKnown(ctx, p.Catalog, parsed.StationID, parsed.ServiceID)
			cancel()
			if err != nil {
				log.Printf("subscription lookup failed client=%s err=%v", client.ID, err)
				continue
			}
			if !known {
				_ = session.Close(4004, "unknown station or service")
				return
			}
			h.UpdateSubscription(client, hub.Subscription{
				StationID: parsed.StationID,
				ServiceID: parsed.ServiceID,
			})
		}
	})

	r := chi.NewRouter()
	r.Handle("/metrics", expvar.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/realtime/*", sockjsHandler)

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(r)), "realtime-service")
	server := &http.Server{
		Addr:        ":" + cfg.RealtimePort,
		Handler:     otelHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("realtime-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
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

type recentSource interface {
	RecentCalls(ctx context.Context, n int) ([]models.Ticket, error)
}

func snapshot(src recentSource) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recent, err := src.RecentCalls(ctx, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotEnvelope{Type: "snapshot", Data: recent})
}

type catalog interface {
	Stations(ctx context.Context) ([]models.Station, error)
	Services(ctx context.Context) ([]models.ServiceDefinition, error)
}

// isKnown reports whether every non-empty filter names a configured station
// or service.
func isKnown(ctx context.Context, c catalog, stationID, serviceID string) (bool, error) {
	if stationID != "" {
		stations, err := c.Stations(ctx)
		if err != nil {
			return false, err
		}
		if !containsStation(stations, stationID) {
			return false, nil
		}
	}
	if serviceID != "" {
		services, err := c.Services(ctx)
		if err != nil {
			return false, err
		}
		if !containsService(services, serviceID) {
			return false, nil
		}
	}
	return true, nil
}

func containsStation(stations []models.Station, id string) bool {
	for _, s := range stations {
		if s.StationID == id {
			return true
		}
	}
	return false
}

func containsService(services []models.ServiceDefinition, id string) bool {
	for _, s := range services {
		if s.ServiceID == id {
			return true
		}
	}
	return false
}

// originAllowed accepts any origin when allowed is empty, otherwise a
// comma-separated list of scheme://host values.
func originAllowed(allowed, origin string) bool {
	if allowed == "" || allowed == "*" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	normalized := parsed.Scheme + "://" + parsed.Host
	for _, item := range strings.Split(allowed, ",") {
		if strings.EqualFold(strings.TrimSpace(item), normalized) {
			return true
		}
	}
	return false
}
