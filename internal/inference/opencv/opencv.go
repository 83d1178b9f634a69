// Package opencv runs Caffe/TensorFlow/ONNX detection models through the
// OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"obstaclecam/internal/inference"

	"gocv.io/x/gocv"
)

// Name is the registry name of this runtime.
const Name = "opencv"

func init() {
	inference.Register(Name, func() inference.Runtime { return Runtime{} })
}

type Runtime struct{}

func (Runtime) Name() string { return Name }

// Open loads the network. When spec.Accelerated is set the CUDA backend is
// tried first and the default CPU path is used if it is rejected. OpenCV
// builds without CUDA accept the backend and switch to the CPU inside
// Forward, so an accepted CUDA backend is only reported as requested.
func (Runtime) Open(_ context.Context, spec inference.Spec) (inference.Session, error) {
	if _, err := os.Stat(spec.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", inference.ErrModelNotFound, spec.ModelPath)
	}
	if spec.ConfigPath != "" {
		if _, err := os.Stat(spec.ConfigPath); err != nil {
			return nil, fmt.Errorf("%w: %s", inference.ErrModelNotFound, spec.ConfigPath)
		}
	}

	var net gocv.Net
	if strings.EqualFold(filepath.Ext(spec.ModelPath), ".onnx") {
		net = gocv.ReadNetFromONNX(spec.ModelPath)
	} else {
		net = gocv.ReadNet(spec.ModelPath, spec.ConfigPath)
	}
	if net.Empty() {
		return nil, fmt.Errorf("%w: opencv could not read %s", inference.ErrModelInvalid, spec.ModelPath)
	}

	execution := inference.ExecutionDefault
	if spec.Accelerated && useCUDA(&net) == nil {
		execution = inference.ExecutionRequested
	} else if err := useCPU(&net); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %v", inference.ErrModelInvalid, err)
	}

	return &session{net: net, spec: spec, execution: execution}, nil
}

func useCUDA(net *gocv.Net) error {
	if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
		return err
	}
	return net.SetPreferableTarget(gocv.NetTargetCUDA)
}

func useCPU(net *gocv.Net) error {
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		return err
	}
	return net.SetPreferableTarget(gocv.NetTargetCPU)
}

type session struct {
	mu        sync.Mutex
	net       gocv.Net
	spec      inference.Spec
	execution inference.Execution
	closed    bool
}

func (s *session) Execution() inference.Execution { return s.execution }

func (s *session) InputSize() (int, int) { return s.spec.InputWidth, s.spec.InputHeight }

func (s *session) Run(ctx context.Context, in inference.Input) ([]inference.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, inference.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Pix) != in.Width*in.Height*3 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d RGB", inference.ErrInputMismatch, len(in.Pix), in.Width, in.Height)
	}

	mat, err := gocv.NewMatFromBytes(in.Height, in.Width, gocv.MatTypeCV8UC3, in.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap input: %w", err)
	}
	defer mat.Close()

	size := image.Pt(in.Width, in.Height)
	if s.spec.InputWidth > 0 && s.spec.InputHeight > 0 {
		size = image.Pt(s.spec.InputWidth, s.spec.InputHeight)
	}
	scale := s.spec.Scale
	if scale == 0 {
		scale = 1
	}
	mean := gocv.NewScalar(s.spec.Mean, s.spec.Mean, s.spec.Mean, 0)

	// input is already RGB, so no channel swap
	blob := gocv.BlobFromImage(mat, scale, size, mean, false, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("forward returned no output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	out := make([]float32, len(data))
	copy(out, data)

	return []inference.Tensor{{Name: "output", Shape: output.Size(), Data: out}}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.net.Close()
}
