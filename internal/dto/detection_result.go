package dto

import "obstaclecam/internal/evaluator"

// DetectionResult is an annotation scaled to image pixels.
type DetectionResult struct {
	Label      string
	Confidence float64
	X          int
	Y          int
	Width      int
	Height     int
	Held       bool
}

// FromAnnotations scales normalised annotations to a w x h image.
func FromAnnotations(anns []evaluator.Annotation, w, h int) []DetectionResult {
	out := make([]DetectionResult, 0, len(anns))
	for _, a := range anns {
		x := int(a.Box.XMin * float64(w))
		y := int(a.Box.YMin * float64(h))
		out = append(out, DetectionResult{
			Label:      a.Label,
			Confidence: a.Confidence,
			X:          x,
			Y:          y,
			Width:      int(a.Box.XMax*float64(w)) - x,
			Height:     int(a.Box.YMax*float64(h)) - y,
			Held:       a.Held,
		})
	}
	return out
}
