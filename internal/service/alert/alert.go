// Package alert raises proximity warnings from evaluated frames.
//
// Proximity is the distance between the bottom of the closest box and the
// bottom of the frame (0 = touching the user, 1 = nothing seen). Each
// update blends in a third of the new value, so one noisy frame cannot
// trigger an alert on its own.
package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/logger"

	"github.com/benbjohnson/clock"
)

type Kind string

const (
	KindObstacle Kind = "obstacle"
	KindEdge     Kind = "edge"
	// KindDepth comes from the depth plane rather than the model.
	KindDepth Kind = "depth"
)

type Alert struct {
	Camera    string    `json:"camera"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label,omitempty"`
	Proximity float64   `json:"proximity"`
	Time      time.Time `json:"time"`
}

type Config struct {
	Threshold float64
	Cycle     time.Duration
	EdgeEvery time.Duration
	// EdgeLabels are reported as edge alerts; everything else is an obstacle.
	EdgeLabels []string
}

func DefaultConfig() Config {
	return Config{
		Threshold:  0.3,
		Cycle:      500 * time.Millisecond,
		EdgeEvery:  time.Minute,
		EdgeLabels: []string{"Edge"},
	}
}

type cameraState struct {
	obstacle      float64
	edge          float64
	depth         float64
	obstacleLabel string
	lastEdgeAlert time.Time
}

// Monitor tracks smoothed proximity per camera and emits alerts on a fixed
// cycle while started.
type Monitor struct {
	cfg     Config
	clock   clock.Clock
	notify  func(Alert)
	logger  *logger.Logger
	mu      sync.Mutex
	cameras map[string]*cameraState
	enabled bool
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a stopped monitor; notify receives every alert.
func NewMonitor(cfg Config, notify func(Alert), opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		clock:   clock.New(),
		notify:  notify,
		logger:  logger.Discard(),
		cameras: make(map[string]*cameraState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) Start() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

func (m *Monitor) isEdge(label string) bool {
	for _, l := range m.cfg.EdgeLabels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Update folds one frame's annotations into the camera's proximity values.
func (m *Monitor) Update(camera string, anns []evaluator.Annotation) {
	obstacle, edge := 1.0, 1.0
	obstacleLabel := ""
	for _, a := range anns {
		p := 1 - a.Box.YMax
		if m.isEdge(a.Label) {
			edge = min(edge, p)
			continue
		}
		if p < obstacle {
			obstacle, obstacleLabel = p, a.Label
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(camera)
	st.obstacle = (st.obstacle + st.obstacle + obstacle) / 3
	st.edge = (st.edge + st.edge + edge) / 3
	if obstacleLabel != "" {
		st.obstacleLabel = obstacleLabel
	}
}

// UpdateDepth folds one depth scan into the camera's depth proximity: a
// detected obstacle counts as 0, a clear scan as 1.
func (m *Monitor) UpdateDepth(camera string, obstacle bool) {
	reading := 1.0
	if obstacle {
		reading = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(camera)
	st.depth = (st.depth + st.depth + reading) / 3
}

func (m *Monitor) stateLocked(camera string) *cameraState {
	st, ok := m.cameras[camera]
	if !ok {
		st = &cameraState{obstacle: 1, edge: 1, depth: 1}
		m.cameras[camera] = st
	}
	return st
}

// DepthProximity returns the smoothed depth value for a camera.
func (m *Monitor) DepthProximity(camera string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.cameras[camera]; ok {
		return st.depth
	}
	return 1
}

// Proximity returns the smoothed obstacle and edge values for a camera.
func (m *Monitor) Proximity(camera string) (obstacle, edge float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.cameras[camera]
	if !ok {
		return 1, 1
	}
	return st.obstacle, st.edge
}

// Forget drops a camera's state.
func (m *Monitor) Forget(camera string) {
	m.mu.Lock()
	delete(m.cameras, camera)
	m.mu.Unlock()
}

// Check runs one alert cycle and returns the alerts it raised. Obstacle and
// depth alerts repeat every cycle while close; edge alerts at most every
// EdgeEvery.
func (m *Monitor) Check() []Alert {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return nil
	}

	now := m.clock.Now()
	names := make([]string, 0, len(m.cameras))
	for name := range m.cameras {
		names = append(names, name)
	}
	sort.Strings(names)

	var alerts []Alert
	for _, name := range names {
		st := m.cameras[name]
		if st.obstacle < m.cfg.Threshold {
			alerts = append(alerts, Alert{
				Camera:    name,
				Kind:      KindObstacle,
				Label:     st.obstacleLabel,
				Proximity: st.obstacle,
				Time:      now,
			})
		}
		if st.depth < m.cfg.Threshold {
			alerts = append(alerts, Alert{
				Camera:    name,
				Kind:      KindDepth,
				Proximity: st.depth,
				Time:      now,
			})
		}
		if st.edge < m.cfg.Threshold && (st.lastEdgeAlert.IsZero() || now.Sub(st.lastEdgeAlert) >= m.cfg.EdgeEvery) {
			st.lastEdgeAlert = now
			alerts = append(alerts, Alert{
				Camera:    name,
				Kind:      KindEdge,
				Proximity: st.edge,
				Time:      now,
			})
		}
	}
	m.mu.Unlock()

	if m.notify != nil {
		for _, a := range alerts {
			m.notify(a)
		}
	}
	return alerts
}

// Run checks every Cycle until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.cfg.Cycle)
	defer ticker.Stop()

	m.logger.Info("Alert monitor started", "cycle", m.cfg.Cycle, "threshold", m.cfg.Threshold)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range m.Check() {
				m.logger.Debug("Proximity alert", "camera", a.Camera, "kind", a.Kind, "proximity", a.Proximity)
			}
		}
	}
}
