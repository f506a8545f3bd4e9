package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/config"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/executor"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/logging"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/metrics"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/publisher"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/telemetry"
)

const shutdownGrace = 5 * time.Second

// deps holds everything both commands share. close must be called once.
type deps struct {
	cfg      *config.Settings
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	pool     *executor.Pool
	client   *publisher.Client
	cleanup  []func()
}

func setup(ctx context.Context, configDir string) (*deps, error) {
	cfg, err := config.LoadFromFile(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Config(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.With().Str("service", cfg.Observability.ServiceName).Logger()

	d := &deps{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	d.cleanup = append(d.cleanup, func() { _ = logCloser.Close() })

	if cfg.Observability.TracingURL != "" {
		shutdownTelemetry, err := telemetry.Init(cfg.Observability, logger)
		if err != nil {
			d.close(ctx)
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		d.cleanup = append(d.cleanup, shutdownTelemetry)
	}

	d.metrics, err = metrics.New(d.registry)
	if err != nil {
		d.close(ctx)
		return nil, err
	}

	d.pool, err = executor.NewPool(cfg.Executor.PoolSize, logger)
	if err != nil {
		d.close(ctx)
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	d.client, err = publisher.New(ctx, cfg.Publisher.ProjectID, cfg.Publisher.Topic, credentials(cfg.Publisher),
		publisher.WithLogger(logger),
		publisher.WithExecutor(d.pool),
		publisher.WithMetrics(d.metrics),
	)
	if err != nil {
		d.close(ctx)
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	logger.Info().Str("topic", d.client.Topic().Name()).Msg("publisher ready")
	return d, nil
}

func credentials(cfg config.PublisherSettings) publisher.CredentialsProvider {
	switch {
	case cfg.Endpoint != "":
		return publisher.Insecure(cfg.Endpoint)
	case cfg.CredentialsFile != "":
		return publisher.CredentialsFile(cfg.CredentialsFile)
	default:
		return nil
	}
}

// close shuts the publisher down, waiting for in-flight messages, then stops
// the executor and flushes telemetry.
func (d *deps) close(ctx context.Context) error {
	var errs []error
	if d.client != nil {
		if _, err := d.client.Close(ctx).Await(ctx); err != nil {
			d.logger.Error().Err(err).Msg("failed to close publisher")
			errs = append(errs, err)
		}
	}
	if d.pool != nil {
		poolCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := d.pool.Shutdown(poolCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop executor: %w", err))
		}
	}
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
	return errors.Join(errs...)
}
