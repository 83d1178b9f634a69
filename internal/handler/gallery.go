package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"obstaclecam/internal/config"
	"obstaclecam/internal/dto"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/repository"
)

// GetPicturesFromDBHandler returns one page of filtered images from the database.
func GetPicturesFromDBHandler(cfg *config.Config, logger *logger.Logger,
	imageRepo repository.ImageRepository, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.ImageFilters{
			Camera:     q.Get("camera"),
			Object:     q.Get("object"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			TimeAfter:  parseTimeOfDay(q.Get("timeAfter")),
			TimeBefore: parseTimeOfDay(q.Get("timeBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		images, err := imageRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying images from database", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalSize, err := imageRepo.GetDirectorySize()
		if err != nil {
			logger.Error("Error getting image directory size", "error", err)
			totalSize = 0
		}

		totalCount, err := imageRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting images", "error", err)
			totalCount = len(images)
		}

		pictures := make([]dto.ImageInfo, 0, len(images))
		for _, img := range images {
			objects := []string{}
			if detectionRepo != nil {
				names, err := detectionRepo.GetObjectNamesByImageID(img.ID)
				if err != nil {
					logger.Error("Error getting objects for image", "image_id", img.ID, "error", err)
				} else if names != nil {
					objects = names
				}
			}

			pictures = append(pictures, dto.ImageInfo{
				Name:      img.Filename,
				Date:      img.Timestamp,
				TimeOfDay: img.Timestamp,
				Camera:    img.Camera,
				Objects:   objects,
			})
		}

		data := dto.ImagesData{
			Images:      pictures,
			ImagesDir:   cfg.ImageDirectory,
			Size:        totalSize,
			MaxSize:     cfg.MaxImageDirectorySize,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}
		writeJSON(w, logger, http.StatusOK, data)
	}
}

// ImageStatsHandler returns totals per camera and per detected label.
func ImageStatsHandler(logger *logger.Logger, imageRepo repository.ImageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := imageRepo.GetStats()
		if err != nil {
			logger.Error("Error reading image stats", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// ObjectNamesHandler lists every label that has been stored.
func ObjectNamesHandler(logger *logger.Logger, detectionRepo repository.DetectionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := detectionRepo.GetAllObjectNames()
		if err != nil {
			logger.Error("Error reading object names", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, logger, http.StatusOK, names)
	}
}

// DeletePictureHandler removes an image from disk and database.
func DeletePictureHandler(cfg *config.Config, logger *logger.Logger, imageRepo repository.ImageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := filepath.Base(r.URL.Query().Get("filename"))
		if filename == "" || filename == "." || filename == string(filepath.Separator) {
			http.Error(w, "Filename required", http.StatusBadRequest)
			return
		}

		filePath := filepath.Join(cfg.ImageDirectory, filename)
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file", "file", filePath, "error", err)
		}

		if imageRepo != nil {
			if err := imageRepo.DeleteByFilename(filename); err != nil {
				logger.Error("Failed to delete from database", "file", filename, "error", err)
			}
		}

		logger.Info("Deleted picture", "file", filename)
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "deleted", "filename": filename})
	}
}

// ClearPicturesWithDBHandler deletes all files from the image directory and clears the database.
func ClearPicturesWithDBHandler(cfg *config.Config, logger *logger.Logger, imageRepo repository.ImageRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := os.ReadDir(cfg.ImageDirectory)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading pictures directory", "error", err)
			http.Error(w, "Unable to read pictures directory", http.StatusInternalServerError)
			return
		}

		for _, file := range files {
			if !file.IsDir() {
				filePath := filepath.Join(cfg.ImageDirectory, file.Name())
				if err := os.Remove(filePath); err != nil {
					logger.Error("Error deleting file", "file", file.Name(), "error", err)
				}
			}
		}

		if imageRepo != nil {
			if err := imageRepo.DeleteAll(); err != nil {
				logger.Error("Error clearing database", "error", err)
			}
		}

		logger.Info("All pictures cleared", "dir", cfg.ImageDirectory)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ViewPictureHandler serves a single image file specified via the "image" query parameter.
func ViewPictureHandler(config *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		image := r.URL.Query().Get("image")
		if image == "" {
			http.Error(w, "Image parameter is required", http.StatusBadRequest)
			return
		}
		filePath := filepath.Join(config.ImageDirectory, filepath.Base(image))
		http.ServeFile(w, r, filePath)
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response", "error", err)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTimeOfDay parses a time-of-day string in the format "15:04" from the request (HTML input format).
func parseTimeOfDay(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
