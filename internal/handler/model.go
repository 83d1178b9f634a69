package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"obstaclecam/internal/dto"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/repository"
)

// ModelController is the model lifecycle surface of the detector service.
type ModelController interface {
	LoadModels(ctx context.Context) error
	FreeModels() map[string]evaluator.Stats
	Stats() map[string]evaluator.Stats
	Loaded() bool
	Runtime() string
	SetFrontFacing(camera string, front bool)
}

// RunRecorder persists the statistics of freed sessions.
type RunRecorder interface {
	RecordRuns(stats map[string]evaluator.Stats)
}

const loadTimeout = 30 * time.Second

func modelStatus(models ModelController) dto.ModelStatus {
	return dto.ModelStatus{
		Loaded:  models.Loaded(),
		Runtime: models.Runtime(),
		Cameras: models.Stats(),
	}
}

// LoadModelHandler handles POST /api/model/load.
func LoadModelHandler(models ModelController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
		defer cancel()

		if err := models.LoadModels(ctx); err != nil {
			logger.Error("Model load request failed", "error", err)
			writeJSON(w, logger, http.StatusInternalServerError, map[string]any{
				"error":  err.Error(),
				"status": modelStatus(models),
			})
			return
		}
		writeJSON(w, logger, http.StatusOK, modelStatus(models))
	}
}

// FreeModelHandler handles POST /api/model/free and records the final
// statistics of every freed session.
func FreeModelHandler(models ModelController, runs RunRecorder, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		final := models.FreeModels()
		if runs != nil {
			runs.RecordRuns(final)
		}
		writeJSON(w, logger, http.StatusOK, dto.ModelStatus{
			Loaded:  models.Loaded(),
			Runtime: models.Runtime(),
			Cameras: final,
		})
	}
}

// ModelStatsHandler handles GET /api/model/stats.
func ModelStatsHandler(models ModelController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, modelStatus(models))
	}
}

// EvaluatorRunsHandler handles GET /api/model/runs?camera=..&limit=..
func EvaluatorRunsHandler(runRepo repository.EvaluatorRunRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		runs, err := runRepo.GetRecent(q.Get("camera"), atoiDefault(q.Get("limit"), 50))
		if err != nil {
			logger.Error("Error reading evaluator runs", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, runs)
	}
}

// CameraFacingHandler handles POST /api/cameras/facing?camera=..&front=true|false.
func CameraFacingHandler(models ModelController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		camera := r.FormValue("camera")
		if camera == "" {
			http.Error(w, "Camera required", http.StatusBadRequest)
			return
		}
		front, err := strconv.ParseBool(r.FormValue("front"))
		if err != nil {
			http.Error(w, "front must be true or false", http.StatusBadRequest)
			return
		}

		models.SetFrontFacing(camera, front)
		writeJSON(w, logger, http.StatusOK, map[string]any{"camera": camera, "front": front})
	}
}
