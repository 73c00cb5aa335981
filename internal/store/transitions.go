package store

import "qms/ticketing/internal/models"

const (
	ActionCall   = "call"
	ActionStart  = "start"
	ActionFinish = "finish"
	ActionAbsent = "absent"
	ActionRecall = "recall"
)

// finish is accepted straight from calling; absent from either active state.
var transitionMap = map[string][]string{
	ActionCall:   {models.StatusWaiting},
	ActionStart:  {models.StatusCalling},
	ActionFinish: {models.StatusCalling, models.StatusServing},
	ActionAbsent: {models.StatusCalling, models.StatusServing},
	ActionRecall: {models.StatusCalling, models.StatusServing},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
