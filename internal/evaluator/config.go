package evaluator

import (
	"fmt"

	"obstaclecam/internal/inference"
)

// Layout names the output tensor layout of a model.
type Layout string

const (
	// LayoutSSD is OpenCV's DetectionOutput: rows of
	// [batch, class, confidence, x1, y1, x2, y2] in normalised coordinates.
	LayoutSSD Layout = "ssd"
	// LayoutTFLiteSSD is TFLite_Detection_PostProcess: boxes [1,N,4] as
	// (ymin, xmin, ymax, xmax), classes [1,N], scores [1,N], count [1].
	LayoutTFLiteSSD Layout = "tflite_ssd"
	// LayoutYOLOv8 is [1, 4+C, N] with (cx, cy, w, h) in input pixels.
	LayoutYOLOv8 Layout = "yolov8"
)

// DefaultLabels are the classes of the obstacle model.
var DefaultLabels = []string{"Obstacle", "Pothole", "Edge", "Uplift"}

// Smoothing controls how predictions carry across frames.
type Smoothing struct {
	// Decay weights the previous confidence when a score drops, and scales
	// held predictions each missed frame.
	Decay float64
	// BoxAlpha is how far a matched box moves towards the new position.
	BoxAlpha float64
	// MatchIoU is the minimum overlap for a candidate to continue a prediction.
	MatchIoU float64
	// MinConfidence evicts predictions and drops raw candidates below it.
	MinConfidence float64
	// MaxMisses is how many frames a vanished prediction is held.
	MaxMisses int
}

type Config struct {
	Spec          inference.Spec
	Layout        Layout
	Labels        []string
	Threshold     float64
	NMSIoU        float64
	Smoothing     Smoothing
	LatencyWindow int
}

func DefaultSmoothing() Smoothing {
	return Smoothing{
		Decay:         0.75,
		BoxAlpha:      0.6,
		MatchIoU:      0.3,
		MinConfidence: 0.05,
		MaxMisses:     2,
	}
}

func DefaultConfig() Config {
	return Config{
		Spec: inference.Spec{
			InputWidth:  320,
			InputHeight: 240,
			Mean:        127.5,
			Scale:       1.0 / 127.5,
			Accelerated: true,
		},
		Layout:        LayoutTFLiteSSD,
		Labels:        DefaultLabels,
		Threshold:     0.5,
		NMSIoU:        0.45,
		Smoothing:     DefaultSmoothing(),
		LatencyWindow: 128,
	}
}

// Validate reports settings that would make evaluation meaningless.
func (c Config) Validate() error {
	if _, ok := decoders[c.Layout]; !ok {
		return fmt.Errorf("unknown output layout %q", c.Layout)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v outside [0, 1]", c.Threshold)
	}
	if c.NMSIoU <= 0 || c.NMSIoU > 1 {
		return fmt.Errorf("nms iou %v outside (0, 1]", c.NMSIoU)
	}
	s := c.Smoothing
	if s.Decay < 0 || s.Decay >= 1 {
		return fmt.Errorf("smoothing decay %v outside [0, 1)", s.Decay)
	}
	if s.BoxAlpha <= 0 || s.BoxAlpha > 1 {
		return fmt.Errorf("box alpha %v outside (0, 1]", s.BoxAlpha)
	}
	if s.MaxMisses < 0 {
		return fmt.Errorf("max misses %d is negative", s.MaxMisses)
	}
	if c.LatencyWindow <= 0 {
		return fmt.Errorf("latency window %d must be positive", c.LatencyWindow)
	}
	return nil
}

// label returns the configured name for a class ID.
func (c Config) label(classID int) string {
	if classID >= 0 && classID < len(c.Labels) && c.Labels[classID] != "" {
		return c.Labels[classID]
	}
	return fmt.Sprintf("class%d", classID)
}
