package models

const (
	AudioVoice = "voice"
	AudioTone  = "tone"
	AudioBoth  = "both"
	AudioNone  = "none"

	VoiceFemale = "female"
	VoiceMale   = "male"

	FormatStandard = "standard"
	FormatCompact  = "compact"
	FormatLong     = "long"
	FormatCustom   = "custom"
)

// QueueConfig is the operator-editable configuration object shared by every
// context. The core only reads it.
type QueueConfig struct {
	DailyReset bool `json:"daily_reset" yaml:"daily_reset"`

	AudioMode   string  `json:"audio_mode" yaml:"audio_mode"`
	TonePattern string  `json:"tone_pattern" yaml:"tone_pattern"`
	ToneVolume  int     `json:"tone_volume" yaml:"tone_volume"`
	VoiceRate   float64 `json:"voice_rate" yaml:"voice_rate"`
	VoiceVolume int     `json:"voice_volume" yaml:"voice_volume"`
	VoicePitch  float64 `json:"voice_pitch" yaml:"voice_pitch"`
	VoiceGender string  `json:"voice_gender" yaml:"voice_gender"`
	CallMessage string  `json:"call_message" yaml:"call_message"`

	RecentCallsShown int `json:"recent_calls_shown" yaml:"recent_calls_shown"`

	TicketFormat string `json:"ticket_format" yaml:"ticket_format"`
	CustomFormat string `json:"custom_format" yaml:"custom_format"`

	BlockStandardWhilePreferentialWaiting bool `json:"block_standard_while_preferential_waiting" yaml:"block_standard_while_preferential_waiting"`
	PreferentialBlockMinutes              int  `json:"preferential_block_minutes" yaml:"preferential_block_minutes"`
}

// RecentCalls returns RecentCallsShown clamped to 1..10.
func (c QueueConfig) RecentCalls() int {
	switch {
	case c.RecentCallsShown < 1:
		return 1
	case c.RecentCallsShown > 10:
		return 10
	default:
		return c.RecentCallsShown
	}
}
