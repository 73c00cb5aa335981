package store

import "qms/ticketing/internal/models"

func DefaultServices() []models.ServiceDefinition {
	return []models.ServiceDefinition{
		{
			ServiceID:         "preferencial",
			Name:              "Atendimento Preferencial",
			Code:              "P",
			Color:             "#3b82f6",
			Active:            true,
			PriorityClass:     models.PriorityPreferential,
			AvgServiceMinutes: 10,
			Order:             1,
		},
		{
			ServiceID:         "comum",
			Name:              "Atendimento Comum",
			Code:              "C",
			Color:             "#10b981",
			Active:            true,
			PriorityClass:     models.PriorityStandard,
			AvgServiceMinutes: 15,
			Order:             2,
		},
	}
}

func DefaultConfig() models.QueueConfig {
	return models.QueueConfig{
		DailyReset:                            true,
		AudioMode:                             models.AudioVoice,
		TonePattern:                           "single-beep",
		ToneVolume:                            90,
		VoiceRate:                             1.0,
		VoiceVolume:                           100,
		VoicePitch:                            1.2,
		VoiceGender:                           models.VoiceFemale,
		CallMessage:                           "Senha {ticket}, Guichê {station}",
		RecentCallsShown:                      3,
		TicketFormat:                          models.FormatStandard,
		CustomFormat:                          "{categoria}{numero:3}",
		BlockStandardWhilePreferentialWaiting: false,
		PreferentialBlockMinutes:              20,
	}
}
