// Command scheduler runs the predictive task scheduler as a standalone
// process: it wires the registry, heartbeat subscriber, heuristic
// predictor, dispatcher, and feedback pipeline to a Redis Streams
// broker, then serves until an interrupt triggers graceful shutdown.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kart-io/predictive-scheduler/internal/dispatcher"
	"github.com/kart-io/predictive-scheduler/internal/events"
	"github.com/kart-io/predictive-scheduler/internal/feedback"
	"github.com/kart-io/predictive-scheduler/internal/heartbeat"
	"github.com/kart-io/predictive-scheduler/internal/predictor"
	"github.com/kart-io/predictive-scheduler/internal/registry"
	"github.com/kart-io/predictive-scheduler/logger"
	"github.com/kart-io/predictive-scheduler/logger/adapters"
	"github.com/kart-io/predictive-scheduler/monitoring"
	"github.com/kart-io/predictive-scheduler/observability"
	"github.com/kart-io/predictive-scheduler/pkg/config"
	schedredis "github.com/kart-io/predictive-scheduler/pkg/stream/redis"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("scheduler: %v", err)
	}

	std := stdlog.New(os.Stdout, "", stdlog.LstdFlags)
	cfg.Logger = adapters.NewStdLogAdapter(std, logger.Info)

	if v := config.NewValidator(false).Validate(cfg); !v.Valid {
		cfg.Logger.Error(context.Background(), "invalid configuration", "errors", v.Errors)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		cfg.Logger.Error(context.Background(), "scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig builds the runtime configuration from a YAML file named by
// SCHEDULER_CONFIG_FILE, falling back to SCHEDULER_* environment variables
// when unset.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("SCHEDULER_CONFIG_FILE"); path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.LoadFromEnv(), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := cfg.Logger

	var telemetry *observability.TelemetryProvider
	if cfg.Telemetry != nil {
		tp, err := observability.NewTelemetryProvider(cfg.Telemetry)
		if err != nil {
			log.Error(ctx, "failed to initialize telemetry, continuing without it", "error", err)
		} else {
			telemetry = tp
			defer telemetry.Shutdown(context.Background())
		}
	}

	client, err := schedredis.NewClient(ctx, schedredis.ConnectionConfig{
		Addr:     cfg.StreamBrokerURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	taskStream, err := schedredis.NewTaskStream(ctx, client, cfg.StreamName, cfg.ConsumerGroup, cfg.ConsumerName, log)
	if err != nil {
		return err
	}
	publisher := schedredis.NewDispatchPublisher(client, cfg.DispatchPrefix, cfg.DispatchMaxLen)
	predictionStore := schedredis.NewPredictionStore(client, cfg.PredictionKey)
	heartbeatSrc := schedredis.NewHeartbeatStream(ctx, client, cfg.HeartbeatStreamName)
	completionSrc := schedredis.NewCompletionStream(ctx, client, cfg.CompletionStreamName)

	reg := registry.New()
	bus := events.NewBus()
	bus.OnWorkerEvent(func(e events.WorkerEvent) {
		log.Info(ctx, "worker event", "type", e.Type, "workerId", e.WorkerID)
	})
	bus.OnFeedbackEvent(func(e events.FeedbackEvent) {
		log.Warn(ctx, "feedback event", "type", e.Type, "taskType", e.TaskType, "severity", e.Severity, "detail", e.Detail)
	})

	pred := predictor.NewHeuristic(ctx, predictionStore, cfg.Alpha, cfg.DefaultDuration, cfg.ConfidenceThreshold, cfg.SnapshotInterval, log)

	hbSub := heartbeat.New(reg, bus, heartbeat.Config{
		UnhealthyTimeout:    cfg.UnhealthyTimeout,
		RemovedTimeout:      cfg.RemovedTimeout,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}, log)
	hbSub.Start(ctx, heartbeatSrc)

	fbSub := feedback.New(pred, bus, feedback.Config{
		AccuracyWindowSize: cfg.AccuracyWindowSize,
		AccuracyThreshold:  cfg.AccuracyThreshold,
		DriftLower:         cfg.DriftLower,
		DriftUpper:         cfg.DriftUpper,
	}, log)
	fbSub.Start(ctx, completionSrc)

	metrics := monitoring.NewMetrics()
	disp := dispatcher.New(taskStream, publisher, reg, pred, cfg, metrics)

	if telemetry != nil {
		go pollStreamDepth(ctx, taskStream, telemetry)
	}

	log.Info(ctx, "scheduler starting", "stream", cfg.StreamName, "group", cfg.ConsumerGroup)
	go disp.Run(ctx)

	<-ctx.Done()
	log.Info(context.Background(), "shutdown signal received, draining")

	disp.Stop()
	hbSub.Stop()
	fbSub.Stop()
	hbSub.Wait()
	fbSub.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pred.Snapshot(shutdownCtx)

	log.Info(context.Background(), "scheduler stopped")
	return nil
}

func pollStreamDepth(ctx context.Context, ts *schedredis.TaskStream, tp *observability.TelemetryProvider) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := ts.Depth(ctx)
			if err != nil {
				continue
			}
			tp.UpdateStreamDepth(ctx, depth-last)
			last = depth
		}
	}
}
