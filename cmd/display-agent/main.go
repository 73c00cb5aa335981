package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/ticketing/internal/announce"
	"qms/ticketing/internal/config"
	"qms/ticketing/internal/httpapi"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/platform"
	"qms/ticketing/internal/telemetry"
)

var (
	announcementsPlayed  = expvar.NewInt("announcements_played_total")
	announcementsSkipped = expvar.NewInt("announcements_skipped_total")
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("display-agent")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	role, err := parseRole(cfg.AnnounceRole)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	p, err := platform.Open(context.Background(), cfg, "display-agent-"+string(role))
	if err != nil {
		log.Fatalf("platform: %v", err)
	}
	defer p.Close()

	// Without a fixed list the device reports its voices once its
	// synthesizer is ready.
	var voices announce.VoiceSource
	device := announce.NewDeviceVoices()
	if cfg.AnnounceVoices != "" {
		voices = announce.ParseVoices(cfg.AnnounceVoices)
	} else {
		voices = device
	}

	coordinator := announce.New(announce.Options{
		Role:   role,
		Leases: p.Leases,
		Config: p.Catalog,
		Player: newPlayer(cfg),
		Voices: voices,
		Clock:  p.Clock,
		OnCall: func(ticket models.Ticket, decision announce.Decision) {
			if decision.Play {
				announcementsPlayed.Add(1)
				return
			}
			announcementsSkipped.Add(1)
		},
	})
	sub := coordinator.Attach(p.Bus)
	defer sub.Unsubscribe()
	log.Printf("display-agent role=%s instance=%s", role, p.Bus.InstanceID())

	r := chi.NewRouter()
	r.Handle("/metrics", expvar.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/voices", voicesHandler(device))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(r), "display-agent"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("display-agent listening on %s", server.Addr)
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

func parseRole(raw string) (announce.Role, error) {
	switch announce.Role(raw) {
	case announce.RoleController, announce.RoleDisplay:
		return announce.Role(raw), nil
	default:
		return "", fmt.Errorf("unknown announce role %q, want controller or display", raw)
	}
}

func newPlayer(cfg config.Config) announce.Player {
	if cfg.AnnounceWebhookToken != "" {
		return announce.NewWebhookPlayer(cfg.AnnounceTarget, cfg.AnnounceWebhookToken)
	}
	return announce.NewPlayer(cfg.AnnounceTarget)
}

type voicesRequest struct {
	Voices []announce.Voice `json:"voices"`
}

// voicesHandler accepts the voice list enumerated by the playback device.
func voicesHandler(device *announce.DeviceVoices) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req voicesRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		device.SetVoices(req.Voices)
		log.Printf("device voices loaded count=%d", len(req.Voices))
		w.WriteHeader(http.StatusNoContent)
	}
}
