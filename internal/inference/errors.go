package inference

import "errors"

var (
	ErrModelNotFound  = errors.New("model file not found")
	ErrModelInvalid   = errors.New("model could not be loaded")
	ErrClosed         = errors.New("session is closed")
	ErrInputMismatch  = errors.New("input does not match model")
	ErrUnknownRuntime = errors.New("unknown inference runtime")
)
