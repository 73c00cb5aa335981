package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Announcement is what the winning context plays for one call.
type Announcement struct {
	TicketID      string    `json:"ticket_id"`
	Code          string    `json:"code"`
	StationNumber int       `json:"station_number"`
	Mode          string    `json:"mode"`
	Pattern       string    `json:"pattern,omitempty"`
	Tones         []Tone    `json:"tones,omitempty"`
	Gain          float64   `json:"gain,omitempty"`
	Speech        *Speech   `json:"speech,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Speech struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice,omitempty"`
	Volume float64 `json:"volume"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	// Delay lets a preceding tone finish first.
	Delay time.Duration `json:"delay,omitempty"`
}

// Player drives the audio device. PlayTones and Speak are separate because
// speech may be deferred until voices are loaded.
type Player interface {
	PlayTones(ctx context.Context, a Announcement) error
	Speak(ctx context.Context, a Announcement) error
}

// NewPlayer returns a webhook player for http(s) URLs and a log player
// otherwise.
func NewPlayer(target string) Player {
	switch {
	case target == "", target == "log":
		return LogPlayer{}
	case target == "noop":
		return noopPlayer{}
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return NewWebhookPlayer(target, "")
	default:
		return LogPlayer{}
	}
}

type LogPlayer struct{}

func (LogPlayer) PlayTones(_ context.Context, a Announcement) error {
	log.Printf("announce tones ticket=%s pattern=%s tones=%d gain=%.2f", a.Code, a.Pattern, len(a.Tones), a.Gain)
	return nil
}

func (LogPlayer) Speak(_ context.Context, a Announcement) error {
	if a.Speech == nil {
		return nil
	}
	log.Printf("announce speech ticket=%s voice=%q text=%q rate=%.2f pitch=%.2f volume=%.2f",
		a.Code, a.Speech.Voice, a.Speech.Text, a.Speech.Rate, a.Speech.Pitch, a.Speech.Volume)
	return nil
}

type noopPlayer struct{}

func (noopPlayer) PlayTones(context.Context, Announcement) error { return nil }
func (noopPlayer) Speak(context.Context, Announcement) error     { return nil }

// WebhookPlayer posts announcements as JSON to a display device.
type WebhookPlayer struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookPlayer(url, token string) *WebhookPlayer {
	return &WebhookPlayer{url: url, token: token, client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *WebhookPlayer) PlayTones(ctx context.Context, a Announcement) error {
	return p.post(ctx, "tones", a)
}

func (p *WebhookPlayer) Speak(ctx context.Context, a Announcement) error {
	return p.post(ctx, "speech", a)
}

func (p *WebhookPlayer) post(ctx context.Context, kind string, a Announcement) error {
	body, err := json.Marshal(map[string]any{
		"kind":         kind,
		"announcement": a,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("display device rejected %s: status %d", kind, resp.StatusCode)
	}
	return nil
}
