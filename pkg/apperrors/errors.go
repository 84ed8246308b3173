package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConversationEnded = errors.New("conversation already ended")
	ErrConversationReset = errors.New("conversation was reset")
	ErrTurnInProgress    = errors.New("a turn is already being processed")
	ErrUnknownScenario   = errors.New("unknown scenario")
)
