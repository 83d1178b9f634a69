package evaluator

import "math"

// Box is a normalised bounding box with a top-left origin.
type Box struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

func (b Box) Width() float64  { return math.Max(0, b.XMax-b.XMin) }
func (b Box) Height() float64 { return math.Max(0, b.YMax-b.YMin) }
func (b Box) Area() float64   { return b.Width() * b.Height() }

// Clamp limits every edge to [0, 1] and orders min/max.
func (b Box) Clamp() Box {
	if b.XMin > b.XMax {
		b.XMin, b.XMax = b.XMax, b.XMin
	}
	if b.YMin > b.YMax {
		b.YMin, b.YMax = b.YMax, b.YMin
	}
	return Box{
		XMin: clamp01(b.XMin),
		YMin: clamp01(b.YMin),
		XMax: clamp01(b.XMax),
		YMax: clamp01(b.YMax),
	}
}

// MirrorX flips the box horizontally.
func (b Box) MirrorX() Box {
	return Box{XMin: 1 - b.XMax, YMin: b.YMin, XMax: 1 - b.XMin, YMax: b.YMax}
}

// Lerp moves b towards to by alpha.
func (b Box) Lerp(to Box, alpha float64) Box {
	return Box{
		XMin: b.XMin + alpha*(to.XMin-b.XMin),
		YMin: b.YMin + alpha*(to.YMin-b.YMin),
		XMax: b.XMax + alpha*(to.XMax-b.XMax),
		YMax: b.YMax + alpha*(to.YMax-b.YMax),
	}
}

// IoU is the intersection over union of two boxes.
func (b Box) IoU(o Box) float64 {
	ix := math.Min(b.XMax, o.XMax) - math.Max(b.XMin, o.XMin)
	iy := math.Min(b.YMax, o.YMax) - math.Max(b.YMin, o.YMin)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Annotation is one overlay entry handed to the UI.
type Annotation struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	// Held marks a prediction carried over from an earlier frame.
	Held bool `json:"held,omitempty"`
}

// Detection is a raw decoded candidate before smoothing.
type Detection struct {
	ClassID    int
	Confidence float64
	Box        Box
}

// Prediction is the smoothing memory kept per class.
type Prediction struct {
	Confidence float64
	Box        Box
	Misses     int
}

// Camera reports which way the capture device faces.
type Camera interface {
	FrontFacing() bool
}

// Facing is a fixed Camera.
type Facing int

const (
	FacingRear Facing = iota
	FacingFront
)

func (f Facing) FrontFacing() bool { return f == FacingFront }

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "rear"
}
