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

	"golang.org/x/sync/errgroup"

	"github.com/your-org/crowdwatch/internal/api"
	"github.com/your-org/crowdwatch/internal/api/handlers"
	"github.com/your-org/crowdwatch/internal/config"
	"github.com/your-org/crowdwatch/internal/observability"
	"github.com/your-org/crowdwatch/internal/queue"
	"github.com/your-org/crowdwatch/internal/relay"
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

	if err := cfg.ValidateRelay(); err != nil {
		slog.Error("relay cannot start", "error", err)
		os.Exit(1)
	}

	slog.Info("starting alert relay", "port", cfg.Relay.Port, "recipient", cfg.Relay.ToNumber)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := relay.NewTwilioProvider(cfg.Relay)
	svc := relay.NewService(provider, cfg.Relay.ToNumber)

	checks := map[string]handlers.Check{}

	// SOS fan-out delivery is optional: the alert endpoint works without NATS.
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create notification consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeNotifications(ctx, "relay-notify", svc.DeliverNotification, 4); err != nil {
			slog.Warn("start notification consumer", "error", err)
		}
	} else {
		slog.Info("nats not configured, sos notification delivery disabled")
	}

	router := api.NewRelayRouter(api.RelayRouterConfig{
		Alerts: handlers.NewAlertHandler(svc),
		Checks: checks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("relay listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	if producer != nil {
		// Periodically report the notification backlog
		g.Go(func() error {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					depth, err := producer.PendingNotifications(gctx)
					if err == nil {
						observability.NotificationBacklog.Set(float64(depth))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down relay...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("relay stopped")
}
