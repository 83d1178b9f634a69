package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"obstaclecam/internal/dto"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock types ---

type MockModels struct {
	mock.Mock
}

func (m *MockModels) LoadModels(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockModels) FreeModels() map[string]evaluator.Stats {
	return m.Called().Get(0).(map[string]evaluator.Stats)
}

func (m *MockModels) Stats() map[string]evaluator.Stats {
	return m.Called().Get(0).(map[string]evaluator.Stats)
}

func (m *MockModels) Loaded() bool { return m.Called().Bool(0) }

func (m *MockModels) Runtime() string { return "mock" }

func (m *MockModels) SetFrontFacing(camera string, front bool) {
	m.Called(camera, front)
}

type MockRuns struct {
	mock.Mock
}

func (m *MockRuns) RecordRuns(stats map[string]evaluator.Stats) {
	m.Called(stats)
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) dto.ModelStatus {
	t.Helper()
	var status dto.ModelStatus
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	return status
}

func TestLoadModelHandler(t *testing.T) {
	models := &MockModels{}
	models.On("LoadModels", mock.Anything).Return(nil).Once()
	models.On("Loaded").Return(true)
	models.On("Stats").Return(map[string]evaluator.Stats{"front": {Loaded: true, Execution: "accelerated"}})

	rr := httptest.NewRecorder()
	LoadModelHandler(models, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/model/load", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	status := decodeStatus(t, rr)
	assert.True(t, status.Loaded)
	assert.Equal(t, "mock", status.Runtime)
	assert.Equal(t, "accelerated", status.Cameras["front"].Execution)
	models.AssertExpectations(t)
}

func TestLoadModelHandler_Failure(t *testing.T) {
	models := &MockModels{}
	models.On("LoadModels", mock.Anything).Return(&evaluator.ModelLoadError{Path: "m.tflite", Err: errors.New("missing")})
	models.On("Loaded").Return(true)
	models.On("Stats").Return(map[string]evaluator.Stats{})

	rr := httptest.NewRecorder()
	LoadModelHandler(models, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/model/load", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body["error"], "m.tflite")
}

func TestLoadModelHandler_MethodNotAllowed(t *testing.T) {
	models := &MockModels{}
	rr := httptest.NewRecorder()
	LoadModelHandler(models, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model/load", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	models.AssertNotCalled(t, "LoadModels", mock.Anything)
}

func TestFreeModelHandler_RecordsRuns(t *testing.T) {
	final := map[string]evaluator.Stats{"front": {Session: "s1", Evaluations: 12, AverageLatency: 8 * time.Millisecond}}

	models := &MockModels{}
	models.On("FreeModels").Return(final).Once()
	models.On("Loaded").Return(false)
	runs := &MockRuns{}
	runs.On("RecordRuns", final).Once()

	rr := httptest.NewRecorder()
	FreeModelHandler(models, runs, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/model/free", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	status := decodeStatus(t, rr)
	assert.False(t, status.Loaded)
	assert.Equal(t, 12, status.Cameras["front"].Evaluations)
	runs.AssertExpectations(t)
}

func TestModelStatsHandler(t *testing.T) {
	models := &MockModels{}
	models.On("Loaded").Return(false)
	models.On("Stats").Return(map[string]evaluator.Stats{"rear": {Failures: 2}})

	rr := httptest.NewRecorder()
	ModelStatsHandler(models, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model/stats", nil))

	status := decodeStatus(t, rr)
	assert.Equal(t, 2, status.Cameras["rear"].Failures)
}

func TestCameraFacingHandler(t *testing.T) {
	models := &MockModels{}
	models.On("SetFrontFacing", "selfie", true).Once()
	handler := CameraFacingHandler(models, logger.Discard())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/cameras/facing?camera=selfie&front=true", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/cameras/facing?camera=selfie&front=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/cameras/facing?front=true", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	models.AssertExpectations(t)
}

func TestEvaluatorRunsHandler(t *testing.T) {
	f := setupGallery(t)
	_, err := f.runs.Insert(&model.EvaluatorRun{Camera: "front", Session: "s1", Evaluations: 3, RecordedAt: time.Now()})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	EvaluatorRunsHandler(f.runs, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model/runs?camera=front", nil))

	var runs []model.EvaluatorRun
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "s1", runs[0].Session)
}
