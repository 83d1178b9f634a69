// Package inference defines the contract between the evaluator and a model runtime.
package inference

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Execution is the path a session runs on.
type Execution int

const (
	ExecutionDefault Execution = iota
	ExecutionAccelerated
	// ExecutionRequested means the accelerated path was asked for but the
	// backend cannot confirm it runs there; it may fall back on first use.
	ExecutionRequested
)

func (e Execution) String() string {
	switch e {
	case ExecutionAccelerated:
		return "accelerated"
	case ExecutionRequested:
		return "accelerated-requested"
	default:
		return "default"
	}
}

// Spec tells a runtime what to open and how the input is normalised:
// value = (pixel - Mean) * Scale.
type Spec struct {
	ModelPath   string
	ConfigPath  string
	InputWidth  int
	InputHeight int
	Mean        float64
	Scale       float64
	Threads     int
	Accelerated bool
}

// Input is an interleaved RGB8 image already sized for the model.
type Input struct {
	Width  int
	Height int
	Pix    []byte
}

// Float32s normalises the pixels for float models.
func (in Input) Float32s(mean, scale float64) []float32 {
	out := make([]float32, len(in.Pix))
	for i, p := range in.Pix {
		out[i] = float32((float64(p) - mean) * scale)
	}
	return out
}

// Tensor is one dequantised output tensor.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Dim returns the size of dimension i, or 0.
func (t Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// Session is an opened model. It is not safe for concurrent Run calls.
type Session interface {
	Execution() Execution
	Run(ctx context.Context, in Input) ([]Tensor, error)
	Close() error
}

// InputSizer is implemented by sessions that know their input size.
type InputSizer interface {
	InputSize() (width, height int)
}

// Runtime opens sessions for one model format.
type Runtime interface {
	Name() string
	Open(ctx context.Context, spec Spec) (Session, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Runtime)
)

// Register makes a runtime available by name. It panics on duplicates.
func Register(name string, factory func() Runtime) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("inference: runtime %q registered twice", name))
	}
	registry[name] = factory
}

// New returns the runtime registered under name.
func New(name string) (Runtime, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuntime, name)
	}
	return factory(), nil
}

// Runtimes lists registered runtime names.
func Runtimes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
