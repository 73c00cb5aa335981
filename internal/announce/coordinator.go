// Package announce decides which running context plays the audio for a
// called ticket and drives the playback device for the winner.
//
// Every context runs the same protocol on each ticket-called event, with no
// arbiter: a controller checks and claims audio-lock-controller-<id>; a
// display backs off while that claim is live, then checks and claims
// audio-lock-<id>. Claims last two seconds. This is a best-effort lock: it
// holds only while every context sees the same medium and clocks agree to
// well within the claim lifetime.
package announce

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"qms/ticketing/internal/bus"
	"qms/ticketing/internal/clock"
	"qms/ticketing/internal/lease"
	"qms/ticketing/internal/models"
	"qms/ticketing/internal/queue"
	"qms/ticketing/internal/store"
)

type Role string

const (
	RoleController Role = "controller"
	RoleDisplay    Role = "display"
)

// LockTTL is how long a claim excludes other contexts.
const LockTTL = 2000 * time.Millisecond

// speechAfterTone leaves room for the tone when both are played.
const speechAfterTone = 600 * time.Millisecond

const (
	ReasonAcquired        = "acquired"
	ReasonControllerHolds = "controller-holds"
	ReasonDisplayHolds    = "display-holds"
	ReasonLostRace        = "lost-race"
)

func ControllerLockKey(ticketID string) string { return "audio-lock-controller-" + ticketID }
func DisplayLockKey(ticketID string) string    { return "audio-lock-" + ticketID }

// Decision is the outcome for one called ticket. Not playing is a normal
// outcome, not an error.
type Decision struct {
	Play    bool
	Reason  string
	LockKey string
	Age     time.Duration
}

type ConfigSource interface {
	Config(ctx context.Context) (models.QueueConfig, error)
}

type Options struct {
	Role   Role
	Leases *lease.Manager
	Config ConfigSource
	Player Player
	// Voices may be nil when the device picks its own voice.
	Voices VoiceSource
	Clock  clock.Clock
	// OnCall runs for every called ticket, whether or not this context plays.
	OnCall func(models.Ticket, Decision)
}

type Coordinator struct {
	role   Role
	leases *lease.Manager
	config ConfigSource
	player Player
	voices VoiceSource
	clock  clock.Clock
	onCall func(models.Ticket, Decision)
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		role:   opts.Role,
		leases: opts.Leases,
		config: opts.Config,
		player: opts.Player,
		voices: opts.Voices,
		clock:  opts.Clock,
		onCall: opts.OnCall,
	}
	if c.role == "" {
		c.role = RoleDisplay
	}
	if c.player == nil {
		c.player = LogPlayer{}
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	return c
}

// HandleTicketCalled runs the claim protocol for ticket and, when this context
// wins, plays the announcement. Playback failures are logged only.
func (c *Coordinator) HandleTicketCalled(ctx context.Context, ticket models.Ticket) (Decision, error) {
	decision, l, err := c.claim(ctx, ticket.TicketID)
	if err != nil {
		return Decision{}, err
	}
	if c.onCall != nil {
		c.onCall(ticket, decision)
	}
	if !decision.Play {
		log.Printf("announce skipped ticket=%s role=%s reason=%s age=%s", ticket.Code, c.role, decision.Reason, decision.Age)
		return decision, nil
	}
	l.ReleaseAfter(LockTTL)
	c.play(ctx, ticket)
	return decision, nil
}

func (c *Coordinator) claim(ctx context.Context, ticketID string) (Decision, *lease.Lease, error) {
	controllerKey := ControllerLockKey(ticketID)
	held, age, err := c.leases.Held(ctx, controllerKey, LockTTL)
	if err != nil {
		return Decision{}, nil, err
	}
	if held {
		return Decision{Reason: ReasonControllerHolds, LockKey: controllerKey, Age: age}, nil, nil
	}

	key := controllerKey
	if c.role == RoleDisplay {
		key = DisplayLockKey(ticketID)
		held, age, err := c.leases.Held(ctx, key, LockTTL)
		if err != nil {
			return Decision{}, nil, err
		}
		if held {
			return Decision{Reason: ReasonDisplayHolds, LockKey: key, Age: age}, nil, nil
		}
	}

	l, ok, err := c.leases.Acquire(ctx, key, LockTTL)
	if err != nil {
		return Decision{}, nil, err
	}
	if !ok {
		return Decision{Reason: ReasonLostRace, LockKey: key}, nil, nil
	}
	return Decision{Play: true, Reason: ReasonAcquired, LockKey: key}, l, nil
}

// Subscriber is satisfied by *bus.Bus.
type Subscriber interface {
	On(t bus.Type, handler bus.Handler) bus.Subscription
}

// Attach runs HandleTicketCalled for every ticket-called event on b.
func (c *Coordinator) Attach(b Subscriber) bus.Subscription {
	return b.On(bus.TypeTicketCalled, func(e bus.Event) {
		ticket, ok := bus.TicketOf(e.Data)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.HandleTicketCalled(ctx, ticket); err != nil {
			log.Printf("announce claim failed ticket=%s role=%s err=%v", ticket.Code, c.role, err)
		}
	})
}

func (c *Coordinator) play(ctx context.Context, ticket models.Ticket) {
	cfg := store.DefaultConfig()
	if c.config != nil {
		loaded, err := c.config.Config(ctx)
		if err != nil {
			log.Printf("announce config unavailable, using defaults err=%v", err)
		} else {
			cfg = loaded
		}
	}
	if cfg.AudioMode == models.AudioNone {
		return
	}

	a := Announcement{
		TicketID:      ticket.TicketID,
		Code:          queue.FormatCode(ticket, cfg),
		StationNumber: ticket.StationNumber,
		Mode:          cfg.AudioMode,
		CreatedAt:     c.clock.Now(),
	}

	withTone := cfg.AudioMode == models.AudioTone || cfg.AudioMode == models.AudioBoth
	withVoice := cfg.AudioMode == models.AudioVoice || cfg.AudioMode == models.AudioBoth || cfg.AudioMode == ""

	if withTone {
		a.Pattern = cfg.TonePattern
		a.Tones = TonePattern(cfg.TonePattern)
		a.Gain = ToneGain(cfg.ToneVolume)
		if err := c.player.PlayTones(ctx, a); err != nil {
			log.Printf("announce tones failed ticket=%s err=%v", a.Code, err)
		}
	}
	if withVoice {
		a.Speech = &Speech{
			Text:   RenderMessage(cfg.CallMessage, a.Code, ticket.StationNumber),
			Lang:   "pt-BR",
			Volume: float64(cfg.VoiceVolume) / 100,
			Rate:   cfg.VoiceRate,
			Pitch:  cfg.VoicePitch,
		}
		if withTone {
			a.Speech.Delay = speechAfterTone
		}
		c.speak(ctx, a, cfg.VoiceGender)
	}
}

// speak plays the speech now when voices are known, otherwise once the
// voice source reports them loaded. It speaks at most once per call.
func (c *Coordinator) speak(ctx context.Context, a Announcement, gender string) {
	if c.voices == nil {
		c.speakWith(ctx, a, nil, gender)
		return
	}
	if voices, loaded := c.voices.Voices(); loaded {
		c.speakWith(ctx, a, voices, gender)
		return
	}

	log.Printf("announce speech deferred until voices load ticket=%s", a.Code)
	var (
		once   sync.Once
		spoken atomic.Bool
		mu     sync.Mutex
		stop   func()
	)
	fire := func() {
		voices, loaded := c.voices.Voices()
		if !loaded {
			return
		}
		once.Do(func() {
			spoken.Store(true)
			mu.Lock()
			s := stop
			mu.Unlock()
			if s != nil {
				s()
			}
			speakCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c.speakWith(speakCtx, a, voices, gender)
		})
	}
	s := c.voices.OnVoicesChanged(fire)
	mu.Lock()
	stop = s
	mu.Unlock()
	if spoken.Load() {
		s()
	}
	// The list may have loaded between the first check and registration.
	fire()
}

func (c *Coordinator) speakWith(ctx context.Context, a Announcement, voices []Voice, gender string) {
	if v, ok := SelectVoice(voices, gender); ok {
		speech := *a.Speech
		speech.Voice = v.Name
		if v.Lang != "" {
			speech.Lang = v.Lang
		}
		a.Speech = &speech
	}
	if err := c.player.Speak(ctx, a); err != nil {
		log.Printf("announce speech failed ticket=%s err=%v", a.Code, err)
	}
}
