package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"obstaclecam/internal/config"
	"obstaclecam/internal/depth"
	"obstaclecam/internal/dto"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/frame"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/service/alert"
)

// Detector evaluates frames per camera.
type Detector interface {
	Evaluate(ctx context.Context, camera string, f *frame.Frame) ([]evaluator.Annotation, error)
}

// Broadcaster sends messages to viewers.
type Broadcaster interface {
	BroadcastJSON(v any) error
}

// SnapshotBuffer keeps frames that produced annotations.
type SnapshotBuffer interface {
	AddImage(imageData []byte, camera string, detections []dto.DetectionResult) bool
}

// ProximityMonitor consumes annotations and depth scans for alerts.
type ProximityMonitor interface {
	Update(camera string, anns []evaluator.Annotation)
	UpdateDepth(camera string, obstacle bool)
}

const (
	MessageFrame       = "frame"
	MessageAnnotations = "annotations"
	MessageAlert       = "alert"
)

// Manager routes camera frames to viewers and, every Nth frame, through the
// camera's evaluator. Each camera has its own worker so evaluations against
// one evaluator never overlap.
type Manager struct {
	detector Detector
	hub      Broadcaster
	buffer   SnapshotBuffer
	monitor  ProximityMonitor
	logger   *logger.Logger

	processEveryNth int
	depthCameras    map[string]bool
	depthConfig     depth.Config

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	cameras map[string]*cameraWorker
	stopped bool
}

type cameraWorker struct {
	queue   chan []byte
	frames  int
	dropped int
	latest  []evaluator.Annotation
	latency float64
}

func NewManager(detector Detector, hub Broadcaster, buffer SnapshotBuffer, monitor ProximityMonitor,
	config *config.Config, logger *logger.Logger) *Manager {
	nth := config.ProcessingInterval
	if nth <= 0 {
		nth = 1
	}

	depthConfig := depth.Config{Step: config.Depth.Step, Jump: config.Depth.Jump}
	if depthConfig.Validate() != nil {
		depthConfig = depth.DefaultConfig()
	}
	depthCameras := make(map[string]bool, len(config.Depth.Cameras))
	for _, name := range config.Depth.Cameras {
		depthCameras[name] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		detector:        detector,
		hub:             hub,
		buffer:          buffer,
		monitor:         monitor,
		logger:          logger,
		processEveryNth: nth,
		depthCameras:    depthCameras,
		depthConfig:     depthConfig,
		ctx:             ctx,
		cancel:          cancel,
		cameras:         make(map[string]*cameraWorker),
	}

	m.logger.Info("Manager started", "process_every", m.processEveryNth)
	return m
}

// HandleCameraFrame forwards a JPEG frame to viewers with the camera's latest
// overlay and queues every Nth frame for evaluation. A frame arriving while
// the previous one is still queued is dropped.
func (m *Manager) HandleCameraFrame(camera string, jpeg []byte) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	w := m.workerLocked(camera)
	w.frames++
	dropped := false
	if w.frames%m.processEveryNth == 0 {
		w.frames = 0
		select {
		case w.queue <- jpeg:
		default:
			w.dropped++
			dropped = true
		}
	}
	overlay := w.latest
	latency := w.latency
	m.mu.Unlock()

	if dropped {
		m.logger.Debug("Evaluation queue busy, frame dropped", "camera", camera)
	}

	m.sendToViewers(dto.FrameMessage{
		Type:        MessageFrame,
		Camera:      camera,
		Image:       base64.StdEncoding.EncodeToString(jpeg),
		Annotations: nonNil(overlay),
		LatencyMs:   latency,
	})
}

// Overlay returns the camera's latest annotations.
func (m *Manager) Overlay(camera string) []evaluator.Annotation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.cameras[camera]; ok {
		return append([]evaluator.Annotation(nil), w.latest...)
	}
	return nil
}

// Dropped returns how many frames were skipped because the camera's worker
// was busy.
func (m *Manager) Dropped(camera string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.cameras[camera]; ok {
		return w.dropped
	}
	return 0
}

// NotifyAlert broadcasts a proximity alert to viewers.
func (m *Manager) NotifyAlert(a alert.Alert) {
	m.sendToViewers(dto.AlertMessage{Type: MessageAlert, Alert: a})
}

// Stop closes every camera queue and waits for in-flight evaluations.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for _, w := range m.cameras {
		close(w.queue)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("All camera workers stopped")
}

func (m *Manager) workerLocked(camera string) *cameraWorker {
	if w, ok := m.cameras[camera]; ok {
		return w
	}

	w := &cameraWorker{queue: make(chan []byte, 1)}
	m.cameras[camera] = w
	m.wg.Add(1)
	go m.processingWorker(camera, w)
	return w
}

func (m *Manager) processingWorker(camera string, w *cameraWorker) {
	defer m.wg.Done()

	m.logger.Info("Camera worker started", "camera", camera)
	for jpeg := range w.queue {
		m.processFrame(camera, w, jpeg)
	}
	m.logger.Info("Camera worker stopped", "camera", camera)
}

func (m *Manager) processFrame(camera string, w *cameraWorker, jpeg []byte) {
	decode := frame.Decode
	if m.depthCameras[camera] {
		decode = frame.DecodeDepth
	}
	f, err := decode(jpeg, time.Now())
	if err != nil {
		m.logger.Warning("Could not decode camera frame", "camera", camera, "error", err)
		return
	}
	if f.Depth != nil {
		m.scanDepth(camera, f)
	}

	start := time.Now()
	anns, err := m.detector.Evaluate(m.ctx, camera, f)
	if err != nil {
		if errors.Is(err, evaluator.ErrModelLoad) {
			m.logger.Warning("Model unavailable for camera", "camera", camera, "error", err)
		} else {
			m.logger.Debug("Frame not evaluated", "camera", camera, "error", err)
		}
		return
	}
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	m.mu.Lock()
	w.latest = anns
	w.latency = latency
	m.mu.Unlock()

	m.sendToViewers(dto.FrameMessage{
		Type:        MessageAnnotations,
		Camera:      camera,
		Annotations: nonNil(anns),
		LatencyMs:   latency,
	})

	if m.monitor != nil {
		m.monitor.Update(camera, anns)
	}

	if len(anns) > 0 && m.buffer != nil {
		m.buffer.AddImage(jpeg, camera, dto.FromAnnotations(anns, f.Width, f.Height))
	}
}

func (m *Manager) scanDepth(camera string, f *frame.Frame) {
	hit, found, err := depth.DetectObstacle(f, m.depthConfig)
	if err != nil {
		m.logger.Warning("Depth scan failed", "camera", camera, "error", err)
		return
	}
	if found {
		m.logger.Debug("Depth obstacle", "camera", camera, "x", hit.X, "y", hit.Y, "near", hit.Near, "far", hit.Far)
	}
	if m.monitor != nil {
		m.monitor.UpdateDepth(camera, found)
	}
}

func (m *Manager) sendToViewers(msg any) {
	if m.hub == nil {
		return
	}
	if err := m.hub.BroadcastJSON(msg); err != nil {
		m.logger.Error("Could not encode viewer message", "error", err)
	}
}

func nonNil(anns []evaluator.Annotation) []evaluator.Annotation {
	if anns == nil {
		return []evaluator.Annotation{}
	}
	return anns
}
