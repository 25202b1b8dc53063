package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/crowdwatch/internal/alerting"
	"github.com/your-org/crowdwatch/internal/api"
	"github.com/your-org/crowdwatch/internal/api/handlers"
	"github.com/your-org/crowdwatch/internal/api/ws"
	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/density"
	"github.com/your-org/crowdwatch/internal/fanout"
	"github.com/your-org/crowdwatch/internal/ingest"
	"github.com/your-org/crowdwatch/internal/models"
	"github.com/your-org/crowdwatch/internal/monitor"
	"github.com/your-org/crowdwatch/internal/observability"
	"github.com/your-org/crowdwatch/internal/queue"
	"github.com/your-org/crowdwatch/internal/sos"
	"github.com/your-org/crowdwatch/internal/storage"
	"github.com/your-org/crowdwatch/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.ValidateConsole(); err != nil {
		slog.Error("console cannot start", "error", err)
		os.Exit(1)
	}
	thresholds, err := density.NewThresholds(cfg.Monitor.WarningThreshold, cfg.Monitor.CriticalThreshold)
	if err != nil {
		slog.Error("invalid density thresholds", "error", err)
		os.Exit(1)
	}

	slog.Info("starting operator console", "port", cfg.Server.Port, "camera", cfg.Monitor.CameraID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	checks := map[string]handlers.Check{
		"postgres": db.Ping,
		"minio":    minioStore.Ping,
		"nats":     func(context.Context) error { return producer.Ping() },
	}

	hub := ws.NewHub()

	// A missing model leaves the detector not ready; the monitor then
	// reports no-webcam instead of failing startup.
	var counter *vision.Pipeline
	if err := vision.InitRuntime(); err != nil {
		slog.Warn("onnx runtime unavailable, detection disabled", "error", err)
	} else {
		defer vision.DestroyRuntime()
		pipeline, err := vision.NewPipeline(cfg.Vision, cfg.Monitor.CameraID)
		if err != nil {
			slog.Warn("detector unavailable", "error", err)
		} else {
			counter = pipeline
			defer pipeline.Close()
		}
	}

	mon := monitor.New(monitor.Options{
		CameraID:        cfg.Monitor.CameraID,
		Thresholds:      thresholds,
		Cooldown:        cfg.Monitor.Cooldown,
		SentDisplay:     cfg.Monitor.SentDisplay,
		SampleInterval:  cfg.Monitor.SampleInterval,
		DispatchTimeout: cfg.Monitor.DispatchTimeout,
	}, monitor.Deps{
		Source:      ingest.NewCamera(cfg.Camera),
		Counter:     counter,
		Dispatcher:  alerting.NewDispatcher(cfg.Monitor.RelayURL, cfg.Monitor.DispatchTimeout),
		Recorder:    monitor.NewArchive(minioStore, producer),
		Broadcaster: hub,
	})

	dir, closeDir, err := newDirectory(ctx, cfg, checks)
	if err != nil {
		slog.Error("init recipient directory", "error", err)
		os.Exit(1)
	}
	defer closeDir()

	notifier := fanout.NewNotifier(dir, producer, cfg.Review.RadiusMeters)
	reviews := sos.NewService(db, minioStore, notifier)
	view := sos.NewPendingView()
	watcher := sos.NewWatcher(db, db, view, hub, cfg.Review.ResubscribeDelay)

	router := api.NewConsoleRouter(api.ConsoleRouterConfig{
		APIKey:  cfg.Server.APIKey,
		Monitor: handlers.NewMonitorHandler(mon),
		Reports: handlers.NewReportHandler(reviews, view, minioStore, cfg.Review.PresignExpiry),
		Hub:     hub,
		Checks:  checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("console listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("console server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down console...")
		mon.Disable()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("console shutdown: %w", err)
		}
		return nil
	})

	if cfg.Monitor.AutoStart {
		mon.Enable(gctx)
	}

	if err := g.Wait(); err != nil {
		slog.Error("console stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("console stopped")
}

// newDirectory builds the recipient directory used by the SOS fan-out.
// The redis directory is seeded with the configured recipients.
func newDirectory(ctx context.Context, cfg *config.Config, checks map[string]handlers.Check) (fanout.Directory, func(), error) {
	if cfg.Review.Directory != "redis" {
		slog.Info("using static recipient directory", "recipients", len(cfg.Review.Recipients))
		return fanout.NewStaticDirectory(cfg.Review.Recipients), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	dir := fanout.NewRedisDirectory(rdb, cfg.Redis.GeoKey)
	for _, rc := range cfg.Review.Recipients {
		r := models.Recipient{ID: rc.ID, Address: rc.Address}
		if err := dir.Register(ctx, r, rc.Latitude, rc.Longitude); err != nil {
			slog.Warn("register recipient", "recipient", rc.ID, "error", err)
		}
	}
	slog.Info("using redis recipient directory", "addr", cfg.Redis.Addr, "seeded", len(cfg.Review.Recipients))
	return dir, func() { _ = rdb.Close() }, nil
}
