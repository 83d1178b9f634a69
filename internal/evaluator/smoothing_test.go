package evaluator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func label(id int) string { return fmt.Sprintf("c%d", id) }

var boxA = Box{XMin: 0.2, YMin: 0.2, XMax: 0.4, YMax: 0.6}

func TestSmoother_FallingScoreIsBlended(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)

	out := s.apply([]Detection{{ClassID: 0, Confidence: 0.5, Box: boxA}}, label)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.75*0.9+0.25*0.5, out[0].Confidence, 1e-9)
	assert.InDelta(t, out[0].Confidence, s.predictions[0].Confidence, 1e-9)
}

func TestSmoother_RisingScoreIsTaken(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.4, Box: boxA}}, label)

	out := s.apply([]Detection{{ClassID: 0, Confidence: 0.8, Box: boxA}}, label)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.8, out[0].Confidence, 1e-9)
}

func TestSmoother_BoxMovesTowardsNewPosition(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)

	moved := Box{XMin: 0.25, YMin: 0.2, XMax: 0.45, YMax: 0.6}
	out := s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: moved}}, label)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.2+0.6*0.05, out[0].Box.XMin, 1e-9)
	assert.InDelta(t, 0.4+0.6*0.05, out[0].Box.XMax, 1e-9)
}

func TestSmoother_DistantCandidateIsNotBlended(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)

	far := Box{XMin: 0.7, YMin: 0.1, XMax: 0.9, YMax: 0.3}
	out := s.apply([]Detection{{ClassID: 0, Confidence: 0.3, Box: far}}, label)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.3, out[0].Confidence, 1e-9)
	assert.Equal(t, far, out[0].Box)
	assert.Equal(t, far, s.predictions[0].Box)
}

func TestSmoother_HoldsThenEvicts(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 2, Confidence: 0.9, Box: boxA}}, label)

	first := s.apply(nil, label)
	require.Len(t, first, 1)
	assert.True(t, first[0].Held)
	assert.Equal(t, "c2", first[0].Label)
	assert.InDelta(t, 0.675, first[0].Confidence, 1e-9)
	assert.Equal(t, boxA, first[0].Box)

	second := s.apply(nil, label)
	require.Len(t, second, 1)
	assert.InDelta(t, 0.50625, second[0].Confidence, 1e-9)
	assert.Equal(t, 2, s.predictions[2].Misses)

	assert.Empty(t, s.apply(nil, label))
	assert.Equal(t, 0, s.len())
}

func TestSmoother_ReappearingResetsMisses(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)
	s.apply(nil, label)

	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)

	assert.Equal(t, 0, s.predictions[0].Misses)
}

func TestSmoother_EvictsWeakPredictions(t *testing.T) {
	cfg := DefaultSmoothing()
	cfg.MinConfidence = 0.2
	s := newSmoother(cfg)
	s.apply([]Detection{{ClassID: 0, Confidence: 0.25, Box: boxA}}, label)

	// 0.25 * 0.75 drops below the floor
	assert.Empty(t, s.apply(nil, label))
	assert.Equal(t, 0, s.len())
}

func TestSmoother_KeepsStrongestPerClass(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	other := Box{XMin: 0.6, YMin: 0.6, XMax: 0.8, YMax: 0.9}

	out := s.apply([]Detection{
		{ClassID: 1, Confidence: 0.8, Box: other},
		{ClassID: 1, Confidence: 0.6, Box: boxA},
		{ClassID: 3, Confidence: 0.7, Box: boxA},
	}, label)

	assert.Len(t, out, 3)
	assert.Equal(t, other, s.predictions[1].Box)
	assert.InDelta(t, 0.7, s.predictions[3].Confidence, 1e-9)
}

func TestSmoother_Reset(t *testing.T) {
	s := newSmoother(DefaultSmoothing())
	s.apply([]Detection{{ClassID: 0, Confidence: 0.9, Box: boxA}}, label)
	s.reset()
	assert.Empty(t, s.apply(nil, label))
}
