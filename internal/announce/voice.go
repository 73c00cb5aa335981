package announce

import (
	"strconv"
	"strings"
	"sync"

	"qms/ticketing/internal/models"
)

// Voice is a speech synthesis voice offered by the playback device.
type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// VoiceSource reports the voices of the synthesizer. loaded is false until
// the synthesizer finished enumerating them.
type VoiceSource interface {
	Voices() (voices []Voice, loaded bool)
	// OnVoicesChanged registers fn to run whenever the voice list changes.
	// The returned func unregisters it.
	OnVoicesChanged(fn func()) (stop func())
}

var (
	femaleKeywords = []string{"female", "feminino", "feminina", "maria", "lucia", "woman"}
	maleKeywords   = []string{"male", "masculino", "joão", "jose", "man"}
)

// SelectVoice picks a voice for gender: a Portuguese voice whose name hints at
// the gender, then any pt-BR voice, then any Portuguese voice, then the
// default voice, then the first one. ok is false only for an empty list.
func SelectVoice(voices []Voice, gender string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	for _, v := range voices {
		if isPortuguese(v) && matchesGender(v.Name, gender) {
			return v, true
		}
	}
	for _, v := range voices {
		if strings.Contains(strings.ToLower(v.Lang), "pt-br") {
			return v, true
		}
	}
	for _, v := range voices {
		if isPortuguese(v) {
			return v, true
		}
	}
	for _, v := range voices {
		if v.Default {
			return v, true
		}
	}
	return voices[0], true
}

func isPortuguese(v Voice) bool {
	return strings.Contains(strings.ToLower(v.Lang), "pt")
}

func matchesGender(name, gender string) bool {
	name = strings.ToLower(name)
	female := containsAny(name, femaleKeywords)
	if gender == models.VoiceMale {
		return !female && containsAny(name, maleKeywords)
	}
	return female
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// RenderMessage substitutes {ticket} and {station} in template. The
// placeholders {senha} and {guiche} are accepted as well.
func RenderMessage(template, ticketCode string, stationNumber int) string {
	station := ""
	if stationNumber > 0 {
		station = strconv.Itoa(stationNumber)
	}
	r := strings.NewReplacer(
		"{ticket}", ticketCode,
		"{senha}", ticketCode,
		"{station}", station,
		"{guiche}", station,
	)
	return r.Replace(template)
}

// StaticVoices is a VoiceSource with a fixed, already loaded list.
type StaticVoices []Voice

func (s StaticVoices) Voices() ([]Voice, bool) { return s, true }

func (s StaticVoices) OnVoicesChanged(func()) func() { return func() {} }

// DeviceVoices is a VoiceSource whose list arrives later, typically reported
// by the playback device once its synthesizer is ready.
type DeviceVoices struct {
	mu        sync.Mutex
	voices    []Voice
	loaded    bool
	nextID    int
	listeners map[int]func()
}

func NewDeviceVoices() *DeviceVoices {
	return &DeviceVoices{listeners: make(map[int]func())}
}

func (d *DeviceVoices) Voices() ([]Voice, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Voice, len(d.voices))
	copy(out, d.voices)
	return out, d.loaded
}

// SetVoices replaces the list, marks it loaded and notifies listeners.
func (d *DeviceVoices) SetVoices(voices []Voice) {
	d.mu.Lock()
	d.voices = append([]Voice(nil), voices...)
	d.loaded = true
	listeners := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (d *DeviceVoices) OnVoicesChanged(fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// ParseVoices reads a comma-separated "name:lang" list. Entries without a
// language default to pt-BR.
func ParseVoices(raw string) StaticVoices {
	var voices StaticVoices
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, lang, ok := strings.Cut(item, ":")
		if !ok || strings.TrimSpace(lang) == "" {
			lang = "pt-BR"
		}
		voices = append(voices, Voice{Name: strings.TrimSpace(name), Lang: strings.TrimSpace(lang)})
	}
	return voices
}
