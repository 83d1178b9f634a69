package depth

import (
	"testing"

	"obstaclecam/internal/frame"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depthFrame(w, h int, fill byte) *frame.Frame {
	depth := make([]byte, w*h)
	for i := range depth {
		depth[i] = fill
	}
	return &frame.Frame{Width: w, Height: h, Format: frame.FormatGray, Pix: make([]byte, w*h), Depth: depth}
}

func TestDetectObstacle(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *frame.Frame)
		want    bool
		wantHit Hit
	}{
		{
			name:  "flat",
			setup: func(*frame.Frame) {},
		},
		{
			name: "jump ten pixels apart",
			setup: func(f *frame.Frame) {
				for x := 15; x < 20; x++ {
					f.Depth[2*20+x] = 220
				}
			},
			want:    true,
			wantHit: Hit{X: 5, Y: 2, Near: 50, Far: 220},
		},
		{
			name: "jump of exactly the threshold",
			setup: func(f *frame.Frame) {
				f.Depth[12] = 150
			},
		},
		{
			name: "falling depth is not an obstacle",
			setup: func(f *frame.Frame) {
				f.Depth[0] = 200
			},
		},
		{
			name: "zero readings are skipped",
			setup: func(f *frame.Frame) {
				f.Depth[0] = 0
				f.Depth[10] = 0
				f.Depth[1] = 0
				f.Depth[11] = 255
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := depthFrame(20, 4, 50)
			tt.setup(f)

			hit, found, err := DetectObstacle(f, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, tt.want, found)
			if tt.want {
				assert.Equal(t, tt.wantHit, hit)
			}
		})
	}
}

func TestDetectObstacle_NarrowFrame(t *testing.T) {
	f := depthFrame(10, 2, 50)
	f.Depth[9] = 255

	_, found, err := DetectObstacle(f, DefaultConfig())
	require.NoError(t, err)
	assert.False(t, found, "no sample has a partner ten pixels away")
}

func TestDetectObstacle_Errors(t *testing.T) {
	f := depthFrame(20, 2, 50)
	f.Depth = nil
	_, _, err := DetectObstacle(f, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoDepth)

	_, _, err = DetectObstacle(depthFrame(20, 2, 50), Config{Step: 0, Jump: 100})
	assert.Error(t, err)

	bad := depthFrame(20, 2, 50)
	bad.Depth = bad.Depth[:5]
	_, _, err = DetectObstacle(bad, DefaultConfig())
	assert.ErrorIs(t, err, frame.ErrInvalidFrame)
}
