package economy

import "errors"

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskInactive     = errors.New("task inactive")
	ErrTaskLimitReached = errors.New("task completion limit reached")

	ErrScenarioNotFound  = errors.New("scenario not found")
	ErrScenarioInactive  = errors.New("scenario inactive")
	ErrRequirementNotMet = errors.New("requirement not met")
	ErrDailyLimitReached = errors.New("daily purchase limit reached")

	ErrReasonTooShort     = errors.New("change reason too short")
	ErrInvalidConfigValue = errors.New("invalid config value")
	ErrUnknownConfigType  = errors.New("unknown config type")
)
