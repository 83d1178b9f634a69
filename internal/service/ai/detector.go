package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"obstaclecam/internal/config"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/frame"
	"obstaclecam/internal/inference"
	"obstaclecam/internal/logger"

	"github.com/samber/lo"
)

// DetectorService keeps one FrameEvaluator per camera. Every evaluator opens
// the same configured model; smoothing state and statistics are per camera.
type DetectorService struct {
	evaluators      map[string]*evaluator.FrameEvaluator
	evaluatorsMutex sync.RWMutex
	runtime         inference.Runtime
	evalConfig      evaluator.Config
	frontCameras    map[string]bool
	loaded          bool
	logger          *logger.Logger
}

// NewDetectorService creates a detector for the configured backend and model.
// Models are not opened until LoadModels is called.
func NewDetectorService(cfg *config.Config, logger *logger.Logger) (*DetectorService, error) {
	rt, err := inference.New(cfg.Model.Backend)
	if err != nil {
		return nil, fmt.Errorf("model backend: %w", err)
	}

	evalConfig, err := EvaluatorConfig(cfg)
	if err != nil {
		return nil, err
	}

	return NewDetectorServiceWithRuntime(rt, evalConfig, cfg.FrontCameras, logger), nil
}

// NewDetectorServiceWithRuntime creates a detector around an existing runtime.
func NewDetectorServiceWithRuntime(rt inference.Runtime, evalConfig evaluator.Config, frontCameras []string, logger *logger.Logger) *DetectorService {
	front := make(map[string]bool, len(frontCameras))
	for _, name := range frontCameras {
		front[name] = true
	}

	return &DetectorService{
		evaluators:   make(map[string]*evaluator.FrameEvaluator),
		runtime:      rt,
		evalConfig:   evalConfig,
		frontCameras: front,
		logger:       logger,
	}
}

// EvaluatorConfig maps the model section of the server config onto an
// evaluator configuration, reading the label file when one is set.
func EvaluatorConfig(cfg *config.Config) (evaluator.Config, error) {
	evalConfig := evaluator.DefaultConfig()
	m := cfg.Model

	evalConfig.Spec = inference.Spec{
		ModelPath:   m.Path,
		ConfigPath:  m.ConfigPath,
		InputWidth:  m.InputWidth,
		InputHeight: m.InputHeight,
		Mean:        m.Mean,
		Scale:       m.Scale,
		Threads:     m.Threads,
		Accelerated: m.Accelerated,
	}
	evalConfig.Layout = evaluator.Layout(m.Layout)
	evalConfig.Threshold = m.Threshold

	if m.LabelsPath != "" {
		labels, err := inference.LoadLabels(m.LabelsPath)
		if err != nil {
			return evaluator.Config{}, fmt.Errorf("model labels: %w", err)
		}
		evalConfig.Labels = labels
	}

	if err := evalConfig.Validate(); err != nil {
		return evaluator.Config{}, fmt.Errorf("model config: %w", err)
	}
	return evalConfig, nil
}

// Runtime returns the name of the inference backend.
func (s *DetectorService) Runtime() string {
	return s.runtime.Name()
}

// LoadModels opens the model for every known camera and marks the service
// loaded, so cameras seen later are loaded on creation. With no camera yet the
// asset is opened once and closed again, so a missing model is reported here
// and the service stays unloaded. Failures of single cameras are joined; the
// others stay loaded and the failed ones are retried on their next frame.
func (s *DetectorService) LoadModels(ctx context.Context) error {
	s.evaluatorsMutex.RLock()
	known := len(s.evaluators)
	s.evaluatorsMutex.RUnlock()

	if known == 0 {
		if err := s.checkModel(ctx); err != nil {
			s.logger.Error("Loading detection model failed", "error", err)
			return err
		}
	}

	s.evaluatorsMutex.Lock()
	s.loaded = true
	evaluators := lo.Values(s.evaluators)
	s.evaluatorsMutex.Unlock()

	var errs []error
	for _, ev := range evaluators {
		if err := ev.LoadModel(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("Loading detection model failed", "error", err)
		return err
	}
	s.logger.Info("Detection model loaded", "runtime", s.runtime.Name(), "cameras", len(evaluators))
	return nil
}

// checkModel opens and closes a session on the configured asset.
func (s *DetectorService) checkModel(ctx context.Context) error {
	path := s.evalConfig.Spec.ModelPath
	session, err := s.runtime.Open(ctx, s.evalConfig.Spec)
	if err != nil {
		return &evaluator.ModelLoadError{Path: path, Err: err}
	}
	if session == nil {
		return &evaluator.ModelLoadError{Path: path, Err: errors.New("runtime returned no session")}
	}
	if err := session.Close(); err != nil {
		s.logger.Warning("Closing model check session failed", "path", path, "error", err)
	}
	return nil
}

// FreeModels releases every camera's model and returns the statistics each
// session had just before it was freed. Unloaded cameras are omitted.
func (s *DetectorService) FreeModels() map[string]evaluator.Stats {
	s.evaluatorsMutex.Lock()
	s.loaded = false
	evaluators := make(map[string]*evaluator.FrameEvaluator, len(s.evaluators))
	for camera, ev := range s.evaluators {
		evaluators[camera] = ev
	}
	s.evaluatorsMutex.Unlock()

	final := make(map[string]evaluator.Stats)
	for camera, ev := range evaluators {
		stats := ev.Stats()
		if stats.Loaded {
			final[camera] = stats
		}
		ev.FreeModel()
	}

	s.logger.Info("Detection model freed", "cameras", len(final))
	return final
}

// Evaluate runs the camera's evaluator on one frame. The evaluator is created
// on first use.
func (s *DetectorService) Evaluate(ctx context.Context, camera string, f *frame.Frame) ([]evaluator.Annotation, error) {
	ev, err := s.getEvaluator(ctx, camera)
	if err != nil {
		return nil, err
	}
	return ev.Evaluate(ctx, f)
}

// SetFrontFacing flips the camera between mirrored and sensor orientation.
func (s *DetectorService) SetFrontFacing(camera string, front bool) {
	s.evaluatorsMutex.Lock()
	s.frontCameras[camera] = front
	ev, exists := s.evaluators[camera]
	s.evaluatorsMutex.Unlock()

	if exists {
		ev.SetCamera(facing(front))
	}
	s.logger.Info("Camera facing changed", "camera", camera, "front", front)
}

// Stats returns a snapshot per camera.
func (s *DetectorService) Stats() map[string]evaluator.Stats {
	s.evaluatorsMutex.RLock()
	defer s.evaluatorsMutex.RUnlock()

	stats := make(map[string]evaluator.Stats, len(s.evaluators))
	for camera, ev := range s.evaluators {
		stats[camera] = ev.Stats()
	}
	return stats
}

// Cameras lists cameras that have an evaluator, sorted.
func (s *DetectorService) Cameras() []string {
	s.evaluatorsMutex.RLock()
	cameras := lo.Keys(s.evaluators)
	s.evaluatorsMutex.RUnlock()

	sort.Strings(cameras)
	return cameras
}

// Loaded reports whether the service is in the loaded state.
func (s *DetectorService) Loaded() bool {
	s.evaluatorsMutex.RLock()
	defer s.evaluatorsMutex.RUnlock()
	return s.loaded
}

// getEvaluator returns the camera's evaluator, creating it when absent.
// While the service is loaded the evaluator is loaded before use, so a camera
// whose earlier load failed is retried on every frame.
func (s *DetectorService) getEvaluator(ctx context.Context, camera string) (*evaluator.FrameEvaluator, error) {
	s.evaluatorsMutex.RLock()
	ev, exists := s.evaluators[camera]
	loaded := s.loaded
	s.evaluatorsMutex.RUnlock()

	if !exists {
		s.evaluatorsMutex.Lock()
		// Double-check (may have been created by another goroutine)
		if ev, exists = s.evaluators[camera]; !exists {
			ev = evaluator.New(s.runtime, s.evalConfig,
				evaluator.WithLogger(s.logger.With("camera", camera).Slog()),
				evaluator.WithCamera(facing(s.frontCameras[camera])),
			)
			s.evaluators[camera] = ev
			s.logger.Info("Created evaluator for camera", "camera", camera)
		}
		loaded = s.loaded
		s.evaluatorsMutex.Unlock()
	}

	if loaded {
		if err := ev.LoadModel(ctx); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func facing(front bool) evaluator.Facing {
	if front {
		return evaluator.FacingFront
	}
	return evaluator.FacingRear
}
