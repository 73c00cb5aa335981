package announce

import (
	"math"
	"time"
)

// Tone is one oscillator note, started Delay after the pattern begins.
type Tone struct {
	Frequency float64       `json:"frequency_hz"`
	Duration  time.Duration `json:"duration"`
	Delay     time.Duration `json:"delay"`
}

const (
	PatternSingleBeep = "single-beep"
	PatternDoubleBeep = "double-beep"
	PatternTripleBeep = "triple-beep"
	PatternChime      = "chime"
	PatternBell       = "bell"
	PatternLongBeep   = "long-beep"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

var tonePatterns = map[string][]Tone{
	PatternSingleBeep: {{Frequency: 880, Duration: ms(150)}},
	PatternDoubleBeep: {
		{Frequency: 880, Duration: ms(100)},
		{Frequency: 880, Duration: ms(100), Delay: ms(150)},
	},
	PatternTripleBeep: {
		{Frequency: 1046, Duration: ms(80)},
		{Frequency: 1046, Duration: ms(80), Delay: ms(120)},
		{Frequency: 1046, Duration: ms(80), Delay: ms(240)},
	},
	PatternChime: {
		{Frequency: 523, Duration: ms(300)},
		{Frequency: 659, Duration: ms(250), Delay: ms(100)},
	},
	PatternBell: {
		{Frequency: 1318, Duration: ms(120)},
		{Frequency: 1567, Duration: ms(120), Delay: ms(120)},
	},
	PatternLongBeep: {{Frequency: 880, Duration: ms(500)}},
}

// TonePattern returns the tones of the named pattern, falling back to
// single-beep for unknown names.
func TonePattern(name string) []Tone {
	tones, ok := tonePatterns[name]
	if !ok {
		tones = tonePatterns[PatternSingleBeep]
	}
	out := make([]Tone, len(tones))
	copy(out, tones)
	return out
}

// ToneGain maps a 0-100 volume to an oscillator gain. Quiet settings are
// raised to 0.3 to stay audible.
func ToneGain(volume int) float64 {
	return math.Max(0.3, float64(volume)/100)
}
