package sqlite_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"obstaclecam/internal/dto"
	"obstaclecam/internal/model"
	"obstaclecam/internal/repository"
	"obstaclecam/internal/repository/sqlite"
)

var (
	_ repository.ImageRepository        = (*sqlite.ImageRepository)(nil)
	_ repository.DetectionRepository    = (*sqlite.DetectionRepository)(nil)
	_ repository.EvaluatorRunRepository = (*sqlite.EvaluatorRunRepository)(nil)
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertImage(t *testing.T, repo *sqlite.ImageRepository, filename, camera string, ts time.Time, size int64) int64 {
	t.Helper()

	id, err := repo.Insert(&model.Image{
		Filename:  filename,
		Camera:    camera,
		Timestamp: ts,
		FilePath:  "/images/" + filename,
		FileSize:  size,
	})
	if err != nil {
		t.Fatalf("Insert %s failed: %v", filename, err)
	}
	return id
}

// ========================================
// Database
// ========================================

func TestDatabase_Connection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_ConcurrentAccess(t *testing.T) {
	db := setupTestDB(t)
	imageRepo := sqlite.NewImageRepository(db)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := imageRepo.Insert(&model.Image{
				Filename:  "concurrent_" + string(rune('a'+i)) + ".jpg",
				Camera:    "front",
				Timestamp: time.Now(),
				FilePath:  "/images/",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent insert failed: %v", err)
		}
	}

	count, err := imageRepo.GetTotalCount(&dto.ImageFilters{})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 20 {
		t.Errorf("Expected 20 images, got %d", count)
	}
}

func TestDatabase_DeleteRemovesDetections(t *testing.T) {
	db := setupTestDB(t)
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	imageID := insertImage(t, imageRepo, "fk_test.jpg", "front", time.Now(), 1024)
	err := detectionRepo.InsertBatch([]model.Detection{
		{ImageID: imageID, ObjectName: "Obstacle", Confidence: 0.9},
		{ImageID: imageID, ObjectName: "Pothole", Confidence: 0.85},
	})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	if err := imageRepo.Delete(imageID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	retrieved, _ := detectionRepo.GetByImageID(imageID)
	if len(retrieved) != 0 {
		t.Errorf("Expected 0 detections after delete, got %d", len(retrieved))
	}
}

// ========================================
// Images
// ========================================

func TestImageRepository_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewImageRepository(db)

	ts := time.Now().Truncate(time.Second)
	id := insertImage(t, repo, "obstacle_1.jpg", "front", ts, 2048)

	byID, err := repo.GetByID(id)
	if err != nil || byID == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.Filename != "obstacle_1.jpg" || byID.Camera != "front" || byID.FileSize != 2048 {
		t.Errorf("Unexpected image: %+v", byID)
	}
	if !byID.Timestamp.Equal(ts) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", ts, byID.Timestamp)
	}

	byName, err := repo.GetByFilename("obstacle_1.jpg")
	if err != nil || byName == nil || byName.ID != id {
		t.Fatalf("GetByFilename failed: %v (%+v)", err, byName)
	}
}

func TestImageRepository_Insert_DuplicateFilename(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewImageRepository(db)

	insertImage(t, repo, "duplicate.jpg", "front", time.Now(), 1)
	_, err := repo.Insert(&model.Image{Filename: "duplicate.jpg", Camera: "front", Timestamp: time.Now(), FilePath: "/"})
	if err == nil {
		t.Error("Expected error for duplicate filename, got nil")
	}
}

func TestImageRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewImageRepository(db)

	img, err := repo.GetByID(9999)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img != nil {
		t.Error("Expected nil for missing image")
	}
}

func TestImageRepository_Filters(t *testing.T) {
	db := setupTestDB(t)
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	day1 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	a := insertImage(t, imageRepo, "a.jpg", "front", day1, 10)
	b := insertImage(t, imageRepo, "b.jpg", "rear", day2, 20)
	insertImage(t, imageRepo, "c.jpg", "front", day2, 30)

	detectionRepo.InsertBatch([]model.Detection{
		{ImageID: a, ObjectName: "Pothole", Confidence: 0.8},
		{ImageID: b, ObjectName: "Edge", Confidence: 0.7},
	})

	tests := []struct {
		name   string
		filter *dto.ImageFilters
		want   int
	}{
		{"nil filter", nil, 3},
		{"empty", &dto.ImageFilters{}, 3},
		{"camera", &dto.ImageFilters{Camera: "front"}, 2},
		{"object", &dto.ImageFilters{Object: "Edge"}, 1},
		{"date after", &dto.ImageFilters{DateAfter: day2}, 2},
		{"date before", &dto.ImageFilters{DateBefore: day1}, 1},
		{"time after", &dto.ImageFilters{TimeAfter: time.Date(0, 1, 1, 12, 0, 0, 0, time.UTC)}, 2},
		{"limit", &dto.ImageFilters{Limit: 2}, 2},
		{"offset only", &dto.ImageFilters{Offset: 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := imageRepo.GetAll(tt.filter)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(images) != tt.want {
				t.Errorf("Expected %d images, got %d", tt.want, len(images))
			}
		})
	}

	all, _ := imageRepo.GetAll(&dto.ImageFilters{})
	if all[0].Timestamp.Before(all[len(all)-1].Timestamp) {
		t.Error("Images should be newest first")
	}

	count, err := imageRepo.GetTotalCount(&dto.ImageFilters{Camera: "front", Limit: 1})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Total count ignores paging: expected 2, got %d", count)
	}
}

func TestImageRepository_SizeAndStats(t *testing.T) {
	db := setupTestDB(t)
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	a := insertImage(t, imageRepo, "a.jpg", "front", time.Now(), 1000)
	insertImage(t, imageRepo, "b.jpg", "rear", time.Now(), 500)
	detectionRepo.InsertBatch([]model.Detection{
		{ImageID: a, ObjectName: "Obstacle", Confidence: 0.9},
		{ImageID: a, ObjectName: "Obstacle", Confidence: 0.6},
	})

	size, err := imageRepo.GetDirectorySize()
	if err != nil {
		t.Fatalf("GetDirectorySize failed: %v", err)
	}
	if size != 1500 {
		t.Errorf("Expected 1500 bytes, got %d", size)
	}

	stats, err := imageRepo.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalImages != 2 || stats.PerCamera["front"] != 1 || stats.ObjectCounts["Obstacle"] != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestImageRepository_DeleteByFilenameAndAll(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewImageRepository(db)

	insertImage(t, repo, "keep.jpg", "front", time.Now(), 1)
	insertImage(t, repo, "drop.jpg", "front", time.Now(), 1)

	if err := repo.DeleteByFilename("drop.jpg"); err != nil {
		t.Fatalf("DeleteByFilename failed: %v", err)
	}
	if err := repo.DeleteByFilename("never-existed.jpg"); err != nil {
		t.Errorf("Deleting a missing file should be a no-op, got %v", err)
	}
	if img, _ := repo.GetByFilename("drop.jpg"); img != nil {
		t.Error("drop.jpg should be gone")
	}

	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	count, _ := repo.GetTotalCount(&dto.ImageFilters{})
	if count != 0 {
		t.Errorf("Expected 0 images, got %d", count)
	}
}

// ========================================
// Detections
// ========================================

func TestDetectionRepository_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	imageID := insertImage(t, imageRepo, "frame.jpg", "front", time.Now(), 1)

	if _, err := detectionRepo.Insert(&model.Detection{
		ImageID: imageID, ObjectName: "Edge", X: 10, Y: 20, Width: 30, Height: 40, Confidence: 0.55, Held: true,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := detectionRepo.InsertBatch([]model.Detection{
		{ImageID: imageID, ObjectName: "Pothole", Confidence: 0.91},
		{ImageID: imageID, ObjectName: "Edge", Confidence: 0.7},
	}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	dets, err := detectionRepo.GetByImageID(imageID)
	if err != nil {
		t.Fatalf("GetByImageID failed: %v", err)
	}
	if len(dets) != 3 {
		t.Fatalf("Expected 3 detections, got %d", len(dets))
	}
	if dets[0].ObjectName != "Pothole" {
		t.Errorf("Expected highest confidence first, got %s", dets[0].ObjectName)
	}
	last := dets[2]
	if !last.Held || last.X != 10 || last.Height != 40 {
		t.Errorf("Unexpected detection: %+v", last)
	}

	names, _ := detectionRepo.GetObjectNamesByImageID(imageID)
	if len(names) != 2 {
		t.Errorf("Expected 2 distinct names, got %v", names)
	}
	all, _ := detectionRepo.GetAllObjectNames()
	if len(all) != 2 || all[0] != "Edge" {
		t.Errorf("Expected sorted names [Edge Pothole], got %v", all)
	}

	if err := detectionRepo.DeleteByImageID(imageID); err != nil {
		t.Fatalf("DeleteByImageID failed: %v", err)
	}
	dets, _ = detectionRepo.GetByImageID(imageID)
	if len(dets) != 0 {
		t.Errorf("Expected 0 detections after delete, got %d", len(dets))
	}
}

// ========================================
// Evaluator runs
// ========================================

func TestEvaluatorRunRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEvaluatorRunRepository(db)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.EvaluatorRun{
		{Camera: "front", Session: "s1", Execution: "accelerated", Evaluations: 100, AverageLatencyMs: 12.5, RecordedAt: base},
		{Camera: "rear", Session: "s2", Execution: "default", Evaluations: 40, Failures: 2, RecordedAt: base.Add(time.Minute)},
		{Camera: "front", Session: "s3", Execution: "accelerated", Evaluations: 7, RecordedAt: base.Add(2 * time.Minute)},
	}
	for i := range runs {
		if _, err := repo.Insert(&runs[i]); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	front, err := repo.GetRecent("front", 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(front) != 2 || front[0].Session != "s3" {
		t.Errorf("Expected newest front run first, got %+v", front)
	}
	if front[1].AverageLatencyMs != 12.5 || front[1].Execution != "accelerated" {
		t.Errorf("Unexpected run: %+v", front[1])
	}

	all, _ := repo.GetRecent("", 2)
	if len(all) != 2 {
		t.Errorf("Expected limit of 2, got %d", len(all))
	}
}
