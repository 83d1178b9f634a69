// Package evaluator turns camera frames into smoothed detection overlays
// using a model opened through an inference runtime.
package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"obstaclecam/internal/frame"
	"obstaclecam/internal/inference"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// FrameEvaluator owns one model session and the per-session state used to
// evaluate frames from a single camera. Calls are serialised; it is meant
// to be driven by one capture queue.
type FrameEvaluator struct {
	mu      sync.Mutex
	runtime inference.Runtime
	cfg     Config
	log     *slog.Logger
	clock   clock.Clock
	camera  Camera

	session     inference.Session
	sessionID   string
	smoother    *smoother
	annotations []Annotation
	latency     *latencyTracker
	failures    int
	lastErr     string
}

type Option func(*FrameEvaluator)

func WithLogger(l *slog.Logger) Option {
	return func(e *FrameEvaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces the wall clock used for latency measurement.
func WithClock(c clock.Clock) Option {
	return func(e *FrameEvaluator) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithCamera(c Camera) Option {
	return func(e *FrameEvaluator) {
		if c != nil {
			e.camera = c
		}
	}
}

// New creates an unloaded evaluator. The camera defaults to rear-facing.
func New(rt inference.Runtime, cfg Config, opts ...Option) *FrameEvaluator {
	e := &FrameEvaluator{
		runtime: rt,
		cfg:     cfg,
		log:     slog.Default(),
		clock:   clock.New(),
		camera:  FacingRear,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.smoother = newSmoother(cfg.Smoothing)
	e.latency = newLatencyTracker(cfg.LatencyWindow)
	return e
}

// LoadModel opens the configured model. It is a no-op when a model is
// already loaded. On failure the evaluator stays unloaded and the error is
// a *ModelLoadError.
func (e *FrameEvaluator) LoadModel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil
	}

	path := e.cfg.Spec.ModelPath
	if err := e.cfg.Validate(); err != nil {
		return &ModelLoadError{Path: path, Err: err}
	}
	session, err := e.runtime.Open(ctx, e.cfg.Spec)
	if err != nil {
		e.log.Warn("Model load failed", "path", path, "runtime", e.runtime.Name(), "error", err)
		return &ModelLoadError{Path: path, Err: err}
	}
	if session == nil {
		return &ModelLoadError{Path: path, Err: errors.New("runtime returned no session")}
	}

	e.session = session
	e.sessionID = uuid.NewString()
	e.resetLocked()

	e.log.Info("Model loaded",
		"path", path,
		"runtime", e.runtime.Name(),
		"execution", session.Execution().String(),
		"session", e.sessionID)
	return nil
}

// FreeModel releases the session and resets all per-session state. It is
// safe to call at any time; close errors are logged, not returned.
func (e *FrameEvaluator) FreeModel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		if err := e.session.Close(); err != nil {
			e.log.Warn("Closing model session failed", "session", e.sessionID, "error", err)
		}
		e.log.Info("Model freed",
			"session", e.sessionID,
			"evaluations", e.latency.count,
			"failures", e.failures,
			"average_latency", e.latency.average())
	}
	e.session = nil
	e.sessionID = ""
	e.resetLocked()
}

func (e *FrameEvaluator) resetLocked() {
	e.smoother.reset()
	e.annotations = nil
	e.latency.reset()
	e.failures = 0
	e.lastErr = ""
}

// Evaluate runs the model on one frame and returns the annotations that
// pass the threshold, highest confidence first, in camera space.
//
// It fails with ErrNotLoaded before LoadModel and with frame.ErrInvalidFrame
// for malformed buffers; neither touches any state. A runtime or decode
// failure is absorbed: the frame yields no annotations, the overlay is
// cleared and the failure is counted, while latency and the evaluation
// count stay unchanged.
func (e *FrameEvaluator) Evaluate(ctx context.Context, f *frame.Frame) ([]Annotation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, ErrNotLoaded
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	start := e.clock.Now()

	w, h := e.inputSizeLocked(f)
	pix, err := f.RGB(w, h)
	if err != nil {
		return nil, err
	}

	outputs, err := e.session.Run(ctx, inference.Input{Width: w, Height: h, Pix: pix})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return e.degradeLocked(&InferenceError{Stage: "run", Err: err}), nil
	}

	dets, err := decoders[e.cfg.Layout](outputs, geometry{width: w, height: h})
	if err != nil {
		return e.degradeLocked(&InferenceError{Stage: "decode", Err: err}), nil
	}

	e.annotations = e.postprocessLocked(dets)
	e.latency.add(e.clock.Since(start))

	return cloneAnnotations(e.annotations), nil
}

func (e *FrameEvaluator) degradeLocked(err *InferenceError) []Annotation {
	e.failures++
	e.lastErr = err.Error()
	e.annotations = nil
	e.log.Warn("Frame evaluation failed", "session", e.sessionID, "stage", err.Stage, "error", err.Err)
	return []Annotation{}
}

func (e *FrameEvaluator) inputSizeLocked(f *frame.Frame) (int, int) {
	if e.cfg.Spec.InputWidth > 0 && e.cfg.Spec.InputHeight > 0 {
		return e.cfg.Spec.InputWidth, e.cfg.Spec.InputHeight
	}
	if sizer, ok := e.session.(inference.InputSizer); ok {
		if w, h := sizer.InputSize(); w > 0 && h > 0 {
			return w, h
		}
	}
	return f.Width, f.Height
}

func (e *FrameEvaluator) postprocessLocked(dets []Detection) []Annotation {
	floor := e.cfg.Smoothing.MinConfidence
	candidates := lo.Filter(dets, func(d Detection, _ int) bool {
		return d.Confidence >= floor
	})
	candidates = nms(candidates, e.cfg.NMSIoU)

	smoothed := e.smoother.apply(candidates, e.cfg.label)
	out := lo.Filter(smoothed, func(a Annotation, _ int) bool {
		return a.Confidence >= e.cfg.Threshold
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ClassID < out[j].ClassID
	})

	if e.camera.FrontFacing() {
		for i := range out {
			out[i].Box = out[i].Box.MirrorX()
		}
	}
	return out
}

// Annotations returns the current overlay.
func (e *FrameEvaluator) Annotations() []Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAnnotations(e.annotations)
}

func (e *FrameEvaluator) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Execution reports the path the loaded session runs on, or "" when unloaded.
func (e *FrameEvaluator) Execution() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.Execution().String()
}

// SetCamera switches the capture device, e.g. after the user flips cameras.
func (e *FrameEvaluator) SetCamera(c Camera) {
	if c == nil {
		c = FacingRear
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.camera = c
}

func (e *FrameEvaluator) Camera() Camera {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

// Predictions returns a copy of the smoothing memory keyed by class ID.
func (e *FrameEvaluator) Predictions() map[int]Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]Prediction, e.smoother.len())
	for k, v := range e.smoother.predictions {
		out[k] = v
	}
	return out
}

func (e *FrameEvaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Loaded:         e.session != nil,
		Session:        e.sessionID,
		Evaluations:    e.latency.count,
		Failures:       e.failures,
		TotalLatency:   e.latency.total,
		AverageLatency: e.latency.average(),
		P50Latency:     e.latency.percentile(50),
		P95Latency:     e.latency.percentile(95),
		LastError:      e.lastErr,
	}
	if e.session != nil {
		s.Execution = e.session.Execution().String()
	}
	return s
}

func cloneAnnotations(in []Annotation) []Annotation {
	out := make([]Annotation, len(in))
	copy(out, in)
	return out
}
