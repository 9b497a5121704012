package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/infrastructure/cache"
	"github.com/mimi6060/festival/internal/infrastructure/config"
	"github.com/mimi6060/festival/internal/infrastructure/telemetry"
	"github.com/mimi6060/festival/internal/metrics"
	fraudsvc "github.com/mimi6060/festival/internal/service/fraud"
	"github.com/mimi6060/festival/internal/service/fraud/anomaly"
	"github.com/mimi6060/festival/internal/service/fraud/pattern"
	"github.com/mimi6060/festival/internal/service/fraud/risk"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to setup logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting festival fraud detector",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment))

	provider, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "festival-frauddetector",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry("festival.fraud")
	if err != nil {
		return err
	}

	var (
		profiles     risk.ProfileStore
		calibrations risk.CalibrationStore
	)
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		profiles = cache.NewProfileStore(redisCache)
		calibrations = cache.NewCalibrationStore(redisCache)
	} else {
		logger.Info("redis disabled, using in-memory stores")
		profiles = cache.NewMemoryProfileStore()
		calibrations = cache.NewMemoryCalibrationStore()
	}

	anomalies := anomaly.NewEngine(logger,
		anomaly.NewDistanceScorer("behavioral_distance", fraud.AnomalyBehavioral),
		anomaly.NewDistanceScorer("pattern_distance", fraud.AnomalyPattern),
	)
	patterns := pattern.NewEngine(logger, pattern.NewCentroidClassifier())
	scorer := risk.NewScorer(logger, profiles, calibrations, nil)

	detector := fraudsvc.NewService(logger, cfg.Fraud,
		anomalies, patterns, scorer, &logSink{logger: logger}, registry)

	logger.Info("fraud detector ready")

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	return detector.Cleanup(context.Background())
}

// logSink writes alerts to the log. Production deployments replace it with
// a real notification transport.
type logSink struct {
	logger *zap.Logger
}

func (s *logSink) Deliver(_ context.Context, alert *fraud.Alert) error {
	s.logger.Warn("fraud alert",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("fraud_type", string(alert.FraudType)),
		zap.Float64("risk_score", alert.RiskScore),
		zap.String("description", alert.Description))
	return nil
}
