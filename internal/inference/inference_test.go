package inference

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRuntime struct{ name string }

func (s stubRuntime) Name() string { return s.name }

func (s stubRuntime) Open(context.Context, Spec) (Session, error) { return nil, ErrModelInvalid }

func TestRegistry(t *testing.T) {
	Register("stub-registry", func() Runtime { return stubRuntime{name: "stub-registry"} })

	rt, err := New("stub-registry")
	require.NoError(t, err)
	assert.Equal(t, "stub-registry", rt.Name())
	assert.Contains(t, Runtimes(), "stub-registry")

	_, err = New("missing")
	assert.ErrorIs(t, err, ErrUnknownRuntime)

	assert.Panics(t, func() {
		Register("stub-registry", func() Runtime { return stubRuntime{} })
	})
}

func TestExecutionString(t *testing.T) {
	assert.Equal(t, "default", ExecutionDefault.String())
	assert.Equal(t, "accelerated", ExecutionAccelerated.String())
	assert.Equal(t, "accelerated-requested", ExecutionRequested.String())
}

func TestInputFloat32s(t *testing.T) {
	in := Input{Width: 1, Height: 1, Pix: []byte{0, 127, 255}}
	out := in.Float32s(127.5, 1/127.5)

	require.Len(t, out, 3)
	assert.InDelta(t, -1.0, out[0], 1e-6)
	assert.InDelta(t, 0.0, out[1], 0.01)
	assert.InDelta(t, 1.0, out[2], 1e-6)
}

func TestTensorDim(t *testing.T) {
	tensor := Tensor{Shape: []int{1, 84, 8400}}
	assert.Equal(t, 84, tensor.Dim(1))
	assert.Equal(t, 0, tensor.Dim(3))
	assert.Equal(t, 0, tensor.Dim(-1))
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("Obstacle\nPothole\n\nUplift\n\n"), 0644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Obstacle", "Pothole", "", "Uplift"}, labels)

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
