// Command reindex rebuilds the snapshot tables from the files in the image
// directory, e.g. after the database was lost.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"obstaclecam/internal/config"
	"obstaclecam/internal/model"
	"obstaclecam/internal/repository/sqlite"
	"obstaclecam/internal/service/storage"

	"github.com/urfave/cli/v2"
)

func main() {
	cfg := config.Load()

	app := &cli.App{
		Name:  "reindex",
		Usage: "index snapshot files into the database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "images", Value: cfg.ImageDirectory, Usage: "directory containing snapshots"},
			&cli.StringFlag{Name: "db", Value: cfg.DatabasePath, Usage: "database path"},
		},
		Action: func(c *cli.Context) error {
			return reindex(c.String("images"), c.String("db"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func reindex(imagesDir, dbPath string) error {
	fmt.Printf("Indexing images from %s into %s\n", imagesDir, dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)

	files, err := os.ReadDir(imagesDir)
	if err != nil {
		return fmt.Errorf("read images directory: %w", err)
	}

	added, skipped := 0, 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".jpg" {
			continue
		}
		if existing, err := imageRepo.GetByFilename(file.Name()); err == nil && existing != nil {
			continue
		}

		timestamp, camera, labels, err := storage.ParseFileName(file.Name())
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", file.Name(), err)
			skipped++
			continue
		}
		info, err := file.Info()
		if err != nil {
			fmt.Printf("Skipping %s: %v\n", file.Name(), err)
			skipped++
			continue
		}

		imageID, err := imageRepo.Insert(&model.Image{
			Filename:  file.Name(),
			Camera:    camera,
			Timestamp: timestamp,
			FilePath:  filepath.Join(imagesDir, file.Name()),
			FileSize:  info.Size(),
		})
		if err != nil {
			return err
		}

		// boxes are not part of the file name, only labels
		detections := make([]model.Detection, 0, len(labels))
		for _, label := range labels {
			detections = append(detections, model.Detection{ImageID: imageID, ObjectName: label})
		}
		if len(detections) > 0 {
			if err := detectionRepo.InsertBatch(detections); err != nil {
				return err
			}
		}
		added++
	}

	fmt.Printf("Indexed %d images, skipped %d\n", added, skipped)

	stats, err := imageRepo.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("Total images: %d (%d bytes)\n", stats.TotalImages, stats.TotalSizeBytes)
	for camera, count := range stats.PerCamera {
		fmt.Printf("   - %s: %d images\n", camera, count)
	}
	return nil
}
