package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/andremotz/katzenschreck/internal/config"
	"github.com/andremotz/katzenschreck/internal/handler"
	"github.com/andremotz/katzenschreck/internal/logger"
	"github.com/andremotz/katzenschreck/internal/metrics"
	"github.com/andremotz/katzenschreck/internal/middleware"
	"github.com/andremotz/katzenschreck/internal/model"
	"github.com/andremotz/katzenschreck/internal/repository"
	"github.com/andremotz/katzenschreck/internal/repository/sqlite"
	"github.com/andremotz/katzenschreck/internal/routes"
	"github.com/andremotz/katzenschreck/internal/service"
	"github.com/andremotz/katzenschreck/internal/service/ai"
	"github.com/andremotz/katzenschreck/internal/service/detection"
	"github.com/andremotz/katzenschreck/internal/service/publisher"
	"github.com/andremotz/katzenschreck/internal/service/snapshot"
	"github.com/andremotz/katzenschreck/internal/service/storage"
	"github.com/andremotz/katzenschreck/internal/service/stream"
	"github.com/andremotz/katzenschreck/internal/service/video"
	"github.com/andremotz/katzenschreck/internal/service/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
	db         *sqlite.DB
	artifacts  repository.ArtifactRepository
	detector   *ai.DetectorService
	publisher  *publisher.Publisher
	hub        *websocket.HubService
	manager    *service.Manager
	supervisor *stream.Supervisor
	startedAt  time.Time
}

// NewApp builds every component from cfg. Failing to load the model or open
// the relational store is fatal; the broker and video source are only
// contacted once Run starts.
func NewApp(cfg *config.Config, logger *logger.Logger) (*App, error) {
	a := &App{
		config:    cfg,
		logger:    logger,
		metrics:   metrics.New(),
		hub:       websocket.NewHubService(logger),
		startedAt: time.Now(),
	}

	var snapshotRepo repository.SnapshotRepository
	if cfg.DatabasePath != "" {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.artifacts = sqlite.NewArtifactRepository(db)
		snapshotRepo = sqlite.NewSnapshotRepository(db)
	}

	detector, err := ai.NewDetectorService(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.detector = detector

	stamper := model.NewStamper()
	pipeline := detection.NewPipeline(detector, nil, stamper, detection.Options{
		Threshold: cfg.ConfidenceThreshold,
		Zone:      cfg.IgnoreZone,
		Classes:   cfg.DetectClasses,
	})

	evictor := storage.NewEvictor(cfg.DiskUsagePath, nil, logger)
	sink, err := storage.NewSink(cfg.OutputDirectory, cfg.DiskUsageThreshold, evictor, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	broker := publisher.NewPahoBroker(publisher.PahoConfig{
		Address:        cfg.BrokerAddress(),
		Username:       cfg.BrokerUsername,
		Password:       cfg.BrokerPassword,
		CameraName:     cfg.CameraName,
		ConnectTimeout: cfg.BrokerConnectTimeout,
	})
	a.publisher = publisher.New(broker, publisher.Options{
		Topic:             cfg.BrokerTopic,
		ConnectTimeout:    cfg.BrokerConnectTimeout,
		PublishTimeout:    cfg.PublishTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, logger, a.metrics)

	components := service.Components{
		Pipeline:  pipeline,
		Sink:      sink,
		Publisher: a.publisher,
		Hub:       a.hub,
		Artifacts: a.artifacts,
		Snapshots: snapshot.NewScheduler(snapshotRepo, snapshot.Options{
			CameraName: cfg.CameraName,
			Interval:   cfg.SnapshotInterval,
			Keep:       cfg.SnapshotKeep,
		}, logger, a.metrics),
		Stamper: stamper,
	}
	a.manager = service.NewManager(components, cfg.SaveAllFrames, logger, a.metrics)
	evictor.OnDelete = a.manager.ForgetArtifact

	a.supervisor = stream.NewSupervisor(
		video.NewSource(cfg.DrainGrabThreshold, logger),
		cfg.VideoSourceURL,
		a.manager,
		logger,
		stream.WithMaxSkip(cfg.DrainMaxFrames),
		stream.WithMetrics(a.metrics),
	)
	return a, nil
}

// Run starts the heartbeat, the viewer hub, the optional status server and
// the frame loop, and blocks until ctx is cancelled. Only the frame loop's
// result is returned.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.printBanner()

	if err := a.publisher.Connect(); err != nil {
		a.logger.Warning("Initial broker connection failed, will retry: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.publisher.RunHeartbeat(ctx)
	}()
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	if a.config.HTTPPort > 0 {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.config.HTTPPort),
			Handler:           a.router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.serveStatus(ctx, server)
		}()
	}

	err := a.supervisor.Run(ctx)
	cancel()
	wg.Wait()
	a.publisher.Close()
	a.logger.Info("👋 Katzenschreck stopped")
	return err
}

// serveStatus runs the status server until ctx is done. A server failure is
// logged and counted; detection and publication keep running without it.
func (a *App) serveStatus(ctx context.Context, server *http.Server) {
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		a.metrics.StatusServerError()
		a.logger.Error("Status server failed, continuing without it: %v", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warning("Status server shutdown: %v", err)
		}
	}
}

func (a *App) router() http.Handler {
	deps := routes.Dependencies{
		Status: handler.StatusDeps{
			Broker:    a.publisher,
			Viewers:   a.hub,
			Artifacts: a.artifacts,
			StartedAt: a.startedAt,
		},
		Hub:       a.hub,
		Artifacts: a.artifacts,
		Metrics:   a.metrics,
		Auth:      middleware.NewAuth(a.config.HTTPPassword),
	}
	return routes.SetupRoutes(deps, a.config, a.logger)
}

// Close releases the model and the relational store.
func (a *App) Close() {
	if a.detector != nil {
		a.detector.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Failed to close database: %v", err)
		}
	}
}

func (a *App) printBanner() {
	a.logger.Info("🐈 Katzenschreck detector")
	a.logger.Info("📹 Camera: %s (%s)", a.config.CameraName, video.RedactURL(a.config.VideoSourceURL))
	a.logger.Info("📡 Broker: %s, topic %s", a.config.BrokerAddress(), a.config.BrokerTopic)
	a.logger.Info("📁 Artifacts: %s (evict above %.0f%%)", a.config.OutputDirectory, a.config.DiskUsageThreshold*100)
	a.logger.Info("🤖 AI Model: %s", a.config.ModelPath)
	if a.config.HTTPPort > 0 {
		a.logger.Info("📍 Status: http://localhost:%d", a.config.HTTPPort)
	}
}
