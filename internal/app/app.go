package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"obstaclecam/internal/capture"
	"obstaclecam/internal/config"
	"obstaclecam/internal/handler"
	"obstaclecam/internal/logger"
	"obstaclecam/internal/repository/sqlite"
	"obstaclecam/internal/route"
	"obstaclecam/internal/service"
	"obstaclecam/internal/service/ai"
	"obstaclecam/internal/service/alert"
	"obstaclecam/internal/service/storage"
	"obstaclecam/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	detector *ai.DetectorService
	buffer   *storage.BufferService
	hub      *websocket.HubService
	monitor  *alert.Monitor
	manager  *service.Manager
	router   http.Handler
}

// NewApp wires configuration, storage, the detector and the HTTP surface.
func NewApp(cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, err
	}
	imageRepo := sqlite.NewImageRepository(db)
	detectionRepo := sqlite.NewDetectionRepository(db)
	runRepo := sqlite.NewEvaluatorRunRepository(db)

	detector, err := ai.NewDetectorService(cfg, log)
	if err != nil {
		db.Close()
		log.Close()
		return nil, err
	}

	a := &App{
		config:   cfg,
		logger:   log,
		db:       db,
		detector: detector,
		buffer:   storage.NewBufferService(cfg, log, imageRepo, detectionRepo, runRepo),
		hub:      websocket.NewHubService(log),
	}

	alertConfig := alert.DefaultConfig()
	alertConfig.Threshold = cfg.Alert.Threshold
	alertConfig.Cycle = cfg.Alert.Cycle
	alertConfig.EdgeEvery = cfg.Alert.EdgeEvery
	a.monitor = alert.NewMonitor(alertConfig, func(al alert.Alert) { a.manager.NotifyAlert(al) }, alert.WithLogger(log))

	a.manager = service.NewManager(detector, a.hub, a.buffer, a.monitor, cfg, log)

	a.router = route.SetupRoutes(route.Deps{
		Config:        cfg,
		Logger:        log,
		Hub:           a.hub,
		Models:        detector,
		Runs:          a.buffer,
		ImageRepo:     imageRepo,
		DetectionRepo: detectionRepo,
		RunRepo:       runRepo,
	})
	return a, nil
}

// Run serves until ctx is done, then shuts everything down in order: HTTP
// and ingest first, then camera workers, then the models (recording their
// final statistics) and finally storage.
func (a *App) Run(ctx context.Context) error {
	defer a.logger.Close()
	defer a.db.Close()

	if a.config.Model.LoadOnStart {
		if err := a.detector.LoadModels(ctx); err != nil {
			a.logger.Warning("Model not loaded at start", "error", err)
		}
	}
	a.monitor.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: a.router,
	}

	g, gctx := errgroup.WithContext(ctx)
	// storage outlives the workers so the final snapshots are flushed
	storageCtx, stopStorage := context.WithCancel(context.Background())
	defer stopStorage()
	storageDone := make(chan struct{})
	go func() {
		a.buffer.Run(storageCtx)
		close(storageDone)
	}()

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return handler.UDPCameraHandler(gctx, a.manager.HandleCameraFrame, a.logger, a.config)
	})
	if a.config.Capture.Device >= 0 {
		g.Go(func() error {
			return a.runCapture(gctx)
		})
	}
	g.Go(func() error {
		a.logger.Info("Obstacle camera server started",
			"url", fmt.Sprintf("http://localhost:%d", a.config.Port),
			"cameras_port", a.config.CamerasPort,
			"model", a.config.Model.Path,
			"runtime", a.detector.Runtime(),
			"images", a.config.ImageDirectory)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.monitor.Stop()
	a.manager.Stop()
	a.buffer.RecordRuns(a.detector.FreeModels())
	stopStorage()
	<-storageDone

	a.logger.Info("Server stopped")
	return err
}

func (a *App) runCapture(ctx context.Context) error {
	source, err := capture.OpenVideoSource(a.config.Capture.Device)
	if err != nil {
		a.logger.Error("Local capture device unavailable", "device", a.config.Capture.Device, "error", err)
		return nil
	}
	device := capture.NewDevice(a.config.Capture.Name, source, a.config.Capture.FPS, a.logger)
	return device.Run(ctx, a.manager.HandleCameraFrame)
}
