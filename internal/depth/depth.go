// Package depth finds obstacles in a frame's depth plane by looking for a
// sudden change of depth along each row.
package depth

import (
	"errors"
	"fmt"

	"obstaclecam/internal/frame"
)

var ErrNoDepth = errors.New("depth: frame has no depth plane")

type Config struct {
	// Step is the horizontal distance in pixels between compared samples.
	Step int
	// Jump is the increase in depth value between two samples that marks
	// an obstacle edge.
	Jump int
}

func DefaultConfig() Config {
	return Config{Step: 10, Jump: 100}
}

func (c Config) Validate() error {
	if c.Step <= 0 {
		return fmt.Errorf("depth: step must be positive, got %d", c.Step)
	}
	if c.Jump < 0 || c.Jump > 255 {
		return fmt.Errorf("depth: jump must be within [0, 255], got %d", c.Jump)
	}
	return nil
}

// Hit is the first sample pair that crossed the jump.
type Hit struct {
	X, Y int
	Near uint8
	Far  uint8
}

// DetectObstacle scans the depth plane row by row, comparing each sample with
// the one Step pixels to its right. It stops at the first pair whose value
// grows by more than Jump. Zero samples carry no reading and are skipped.
func DetectObstacle(f *frame.Frame, cfg Config) (Hit, bool, error) {
	if err := f.Validate(); err != nil {
		return Hit{}, false, err
	}
	if f.Depth == nil {
		return Hit{}, false, ErrNoDepth
	}
	if err := cfg.Validate(); err != nil {
		return Hit{}, false, err
	}

	w := f.Width
	for y := 0; y < f.Height; y++ {
		row := f.Depth[y*w : (y+1)*w]
		for x := 0; x+cfg.Step < w; x++ {
			near, far := row[x], row[x+cfg.Step]
			if near == 0 || far == 0 {
				continue
			}
			if int(far)-int(near) > cfg.Jump {
				return Hit{X: x, Y: y, Near: near, Far: far}, true, nil
			}
		}
	}
	return Hit{}, false, nil
}
