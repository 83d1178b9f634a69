package evaluator

import (
	"errors"
	"fmt"
)

var (
	ErrNotLoaded = errors.New("evaluator: model not loaded")
	ErrModelLoad = errors.New("evaluator: model load failed")
	ErrInference = errors.New("evaluator: inference failed")
)

// ModelLoadError reports why a model asset could not be opened.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// InferenceError is a per-frame failure inside the runtime or while
// decoding its output. Evaluate absorbs it and returns an empty result.
type InferenceError struct {
	Stage string // "run" or "decode"
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInference }
