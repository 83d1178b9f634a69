// Package tflite runs TensorFlow Lite models, optionally through the
// XNNPACK delegate.
package tflite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"obstaclecam/internal/inference"

	tflite "github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/xnnpack"
)

// Name is the registry name of this runtime.
const Name = "tflite"

func init() {
	inference.Register(Name, func() inference.Runtime { return Runtime{} })
}

type Runtime struct{}

func (Runtime) Name() string { return Name }

// Open builds an interpreter for spec.ModelPath. With spec.Accelerated the
// XNNPACK delegate is attached; if the delegate cannot be created or the
// interpreter rejects it, a plain interpreter is built instead.
func (Runtime) Open(_ context.Context, spec inference.Spec) (inference.Session, error) {
	if _, err := os.Stat(spec.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", inference.ErrModelNotFound, spec.ModelPath)
	}

	model := tflite.NewModelFromFile(spec.ModelPath)
	if model == nil {
		return nil, fmt.Errorf("%w: tflite could not read %s", inference.ErrModelInvalid, spec.ModelPath)
	}

	threads := spec.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if spec.Accelerated {
		if s, err := build(model, spec, threads, true); err == nil {
			return s, nil
		}
	}
	s, err := build(model, spec, threads, false)
	if err != nil {
		model.Delete()
		return nil, err
	}
	return s, nil
}

func build(model *tflite.Model, spec inference.Spec, threads int, accelerated bool) (*session, error) {
	options := tflite.NewInterpreterOptions()
	if options == nil {
		return nil, fmt.Errorf("%w: interpreter options", inference.ErrModelInvalid)
	}
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		slog.Warn("tflite", "msg", msg)
	}, nil)

	var delegate delegates.Delegater
	if accelerated {
		delegate = xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(threads)})
		if delegate == nil {
			options.Delete()
			return nil, fmt.Errorf("%w: xnnpack delegate unavailable", inference.ErrModelInvalid)
		}
		options.AddDelegate(delegate)
	}

	release := func() {
		options.Delete()
		if delegate != nil {
			delegate.Delete()
		}
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		release()
		return nil, fmt.Errorf("%w: create interpreter", inference.ErrModelInvalid)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		release()
		return nil, fmt.Errorf("%w: allocate tensors", inference.ErrModelInvalid)
	}

	execution := inference.ExecutionDefault
	if accelerated {
		execution = inference.ExecutionAccelerated
	}
	return &session{
		model:       model,
		options:     options,
		delegate:    delegate,
		interpreter: interpreter,
		spec:        spec,
		execution:   execution,
	}, nil
}

type session struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter
	spec        inference.Spec
	execution   inference.Execution
	closed      bool
}

func (s *session) Execution() inference.Execution { return s.execution }

// InputSize reads [1, height, width, 3] from the input tensor.
func (s *session) InputSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0
	}
	input := s.interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() < 4 {
		return 0, 0
	}
	return input.Dim(2), input.Dim(1)
}

func (s *session) Run(ctx context.Context, in inference.Input) ([]inference.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, inference.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := s.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("%w: no input tensor", inference.ErrInputMismatch)
	}
	if input.NumDims() >= 4 && (input.Dim(1) != in.Height || input.Dim(2) != in.Width) {
		return nil, fmt.Errorf("%w: model wants %dx%d, got %dx%d",
			inference.ErrInputMismatch, input.Dim(2), input.Dim(1), in.Width, in.Height)
	}

	var status tflite.Status
	switch input.Type() {
	case tflite.UInt8:
		status = input.CopyFromBuffer(in.Pix)
	case tflite.Float32:
		status = input.CopyFromBuffer(in.Float32s(s.spec.Mean, s.spec.Scale))
	default:
		return nil, fmt.Errorf("%w: unsupported input type %v", inference.ErrInputMismatch, input.Type())
	}
	if status != tflite.OK {
		return nil, fmt.Errorf("copy input: status %v", status)
	}

	if status := s.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke: status %v", status)
	}

	count := s.interpreter.GetOutputTensorCount()
	outputs := make([]inference.Tensor, 0, count)
	for i := 0; i < count; i++ {
		t := s.interpreter.GetOutputTensor(i)
		data, err := dequantize(t)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		shape := make([]int, t.NumDims())
		for d := range shape {
			shape[d] = t.Dim(d)
		}
		outputs = append(outputs, inference.Tensor{Name: t.Name(), Shape: shape, Data: data})
	}
	return outputs, nil
}

func dequantize(t *tflite.Tensor) ([]float32, error) {
	switch t.Type() {
	case tflite.Float32:
		src := t.Float32s()
		out := make([]float32, len(src))
		copy(out, src)
		return out, nil
	case tflite.UInt8:
		q := t.QuantizationParams()
		src := t.UInt8s()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(q.Scale * float64(int(v)-q.ZeroPoint))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported output type %v", t.Type())
	}
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.interpreter.Delete()
	s.options.Delete()
	if s.delegate != nil {
		s.delegate.Delete()
	}
	s.model.Delete()
	return nil
}
