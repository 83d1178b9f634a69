package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"obstaclecam/internal/config"
	"obstaclecam/internal/dto"
	"obstaclecam/internal/evaluator"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/model"
	"obstaclecam/internal/repository"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

// TimestampLayout is the timestamp part of snapshot file names.
const TimestampLayout = "2006-01-02_15-04_05.000"

// BufferService buffers snapshots in memory and periodically flushes them to
// disk and the repositories.
type BufferService struct {
	imagesDir     string
	limit         int
	flushEvery    time.Duration
	maxDirBytes   int64
	images        []dto.BufferedImage
	bufferCount   map[string]int
	mu            sync.Mutex
	clock         clock.Clock
	logger        *logger.Logger
	imageRepo     repository.ImageRepository
	detectionRepo repository.DetectionRepository
	runRepo       repository.EvaluatorRunRepository
}

// NewBufferService creates a BufferService writing to the configured image
// directory. Any repository may be nil.
func NewBufferService(config *config.Config, logger *logger.Logger, imageRepo repository.ImageRepository,
	detectionRepo repository.DetectionRepository, runRepo repository.EvaluatorRunRepository) *BufferService {
	return &BufferService{
		imagesDir:     config.ImageDirectory,
		limit:         config.ImageBufferLimit,
		flushEvery:    time.Duration(config.ImageBufferFlushInterval) * time.Second,
		maxDirBytes:   config.MaxImageDirectorySize << 30,
		images:        make([]dto.BufferedImage, 0),
		bufferCount:   make(map[string]int),
		clock:         clock.New(),
		logger:        logger,
		imageRepo:     imageRepo,
		detectionRepo: detectionRepo,
		runRepo:       runRepo,
	}
}

// SetClock replaces the clock used for timestamps and the flush ticker.
func (s *BufferService) SetClock(c clock.Clock) {
	s.mu.Lock()
	s.clock = c
	s.mu.Unlock()
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (s *BufferService) Run(ctx context.Context) {
	if s.flushEvery <= 0 {
		s.flushEvery = 30 * time.Second
	}
	ticker := s.clock.Ticker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushImages()
			return
		case <-ticker.C:
			s.FlushImages()
		}
	}
}

// AddImage appends a snapshot for a camera unless the camera already filled
// its share of the current flush window. It reports whether it was kept.
func (s *BufferService) AddImage(imageData []byte, cameraId string, detections []dto.DetectionResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bufferCount[cameraId] >= s.limit {
		return false
	}

	s.images = append(s.images, dto.BufferedImage{
		Timestamp:  s.clock.Now().Format(TimestampLayout),
		Camera:     cameraId,
		Detections: detections,
		Data:       imageData,
	})
	s.bufferCount[cameraId]++
	s.logger.Debug("Snapshot buffered", "camera", cameraId, "count", s.bufferCount[cameraId], "limit", s.limit)
	return true
}

// Pending returns the number of buffered snapshots.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// FileName builds the snapshot file name from its timestamp, camera and labels.
func FileName(img dto.BufferedImage) string {
	labels := lo.Uniq(lo.Map(img.Detections, func(d dto.DetectionResult, _ int) string {
		return d.Label
	}))
	return fmt.Sprintf("%s_%s_%s.jpg", img.Timestamp, img.Camera, strings.Join(labels, "-"))
}

// FlushImages writes buffered snapshots to disk and the repositories, then
// resets the buffer and per-camera counters.
func (s *BufferService) FlushImages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) == 0 {
		return
	}

	if err := os.MkdirAll(s.imagesDir, 0755); err != nil {
		s.logger.Error("Error creating image directory", "dir", s.imagesDir, "error", err)
		return
	}

	savedCount := 0
	for _, image := range s.images {
		if s.saveLocked(image) {
			savedCount++
		}
	}

	s.logger.Info("Flushed images to disk", "saved", savedCount, "buffered", len(s.images))
	s.images = s.images[:0]
	s.bufferCount = make(map[string]int)

	s.pruneLocked()
}

func (s *BufferService) saveLocked(image dto.BufferedImage) bool {
	filename := FileName(image)
	fullpath := filepath.Join(s.imagesDir, filename)

	if err := os.WriteFile(fullpath, image.Data, 0644); err != nil {
		s.logger.Error("Error saving image", "file", filename, "error", err)
		return false
	}

	if s.imageRepo == nil {
		return true
	}

	ts, err := time.ParseInLocation(TimestampLayout, image.Timestamp, time.Local)
	if err != nil {
		ts = s.clock.Now()
	}

	imageID, err := s.imageRepo.Insert(&model.Image{
		Filename:  filename,
		Camera:    image.Camera,
		Timestamp: ts,
		FilePath:  fullpath,
		FileSize:  int64(len(image.Data)),
	})
	if err != nil {
		s.logger.Error("Error saving image to database", "file", filename, "error", err)
		return true
	}

	if s.detectionRepo != nil && len(image.Detections) > 0 {
		dbDetections := lo.Map(image.Detections, func(det dto.DetectionResult, _ int) model.Detection {
			return model.Detection{
				ImageID:    imageID,
				ObjectName: det.Label,
				X:          det.X,
				Y:          det.Y,
				Width:      det.Width,
				Height:     det.Height,
				Confidence: det.Confidence,
				Held:       det.Held,
			}
		})
		if err := s.detectionRepo.InsertBatch(dbDetections); err != nil {
			s.logger.Error("Error saving detections to database", "file", filename, "error", err)
		}
	}
	return true
}

// pruneLocked deletes the oldest snapshots while the stored total exceeds
// the configured directory size.
func (s *BufferService) pruneLocked() {
	if s.imageRepo == nil || s.maxDirBytes <= 0 {
		return
	}

	size, err := s.imageRepo.GetDirectorySize()
	if err != nil {
		s.logger.Warning("Could not read image directory size", "error", err)
		return
	}
	if size <= s.maxDirBytes {
		return
	}

	images, err := s.imageRepo.GetAll(&dto.ImageFilters{})
	if err != nil {
		s.logger.Warning("Could not list images for pruning", "error", err)
		return
	}

	removed := 0
	// newest first, so walk from the end
	for i := len(images) - 1; i >= 0 && size > s.maxDirBytes; i-- {
		img := images[i]
		if err := os.Remove(img.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warning("Could not remove image file", "file", img.FilePath, "error", err)
			continue
		}
		if err := s.imageRepo.Delete(img.ID); err != nil {
			s.logger.Warning("Could not delete image record", "id", img.ID, "error", err)
			continue
		}
		size -= img.FileSize
		removed++
	}
	s.logger.Info("Pruned image directory", "removed", removed, "size", size, "max", s.maxDirBytes)
}

// RecordRuns stores the final statistics of freed evaluator sessions.
func (s *BufferService) RecordRuns(stats map[string]evaluator.Stats) {
	if s.runRepo == nil {
		return
	}

	s.mu.Lock()
	now := s.clock.Now()
	s.mu.Unlock()

	for camera, st := range stats {
		if st.Session == "" {
			continue
		}
		run := &model.EvaluatorRun{
			Camera:           camera,
			Session:          st.Session,
			Execution:        st.Execution,
			Evaluations:      st.Evaluations,
			Failures:         st.Failures,
			AverageLatencyMs: float64(st.AverageLatency) / float64(time.Millisecond),
			P95LatencyMs:     float64(st.P95Latency) / float64(time.Millisecond),
			RecordedAt:       now,
		}
		if _, err := s.runRepo.Insert(run); err != nil {
			s.logger.Error("Error saving evaluator run", "camera", camera, "session", st.Session, "error", err)
		}
	}
}

// ParseFileName splits a snapshot file name built by FileName back into its
// timestamp, camera and labels.
func ParseFileName(name string) (time.Time, string, []string, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if len(base) <= len(TimestampLayout)+1 || base[len(TimestampLayout)] != '_' {
		return time.Time{}, "", nil, fmt.Errorf("invalid snapshot name %q", name)
	}

	ts, err := time.ParseInLocation(TimestampLayout, base[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, "", nil, fmt.Errorf("invalid snapshot timestamp in %q: %w", name, err)
	}

	rest := base[len(TimestampLayout)+1:]
	sep := strings.LastIndex(rest, "_")
	if sep <= 0 {
		return time.Time{}, "", nil, fmt.Errorf("invalid snapshot name %q", name)
	}

	camera := rest[:sep]
	labels := lo.Compact(strings.Split(rest[sep+1:], "-"))
	return ts, camera, labels, nil
}
