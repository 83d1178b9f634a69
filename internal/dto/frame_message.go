package dto

import (
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/service/alert"
)

// FrameMessage is broadcast to viewers for every evaluated frame.
type FrameMessage struct {
	Type        string                 `json:"type"`
	Camera      string                 `json:"camera"`
	Image       string                 `json:"image,omitempty"` // base64 JPEG
	Annotations []evaluator.Annotation `json:"annotations"`
	LatencyMs   float64                `json:"latency_ms"`
}

// AlertMessage is broadcast when the alert monitor fires.
type AlertMessage struct {
	Type  string      `json:"type"`
	Alert alert.Alert `json:"alert"`
}

// ModelStatus is the body of the model lifecycle endpoints.
type ModelStatus struct {
	Loaded  bool                       `json:"loaded"`
	Runtime string                     `json:"runtime"`
	Cameras map[string]evaluator.Stats `json:"cameras"`
}
