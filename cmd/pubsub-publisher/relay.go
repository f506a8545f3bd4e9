package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/metrics"
	outbox "github.com/zoff-tech/go-pubsub-publisher/pkg/relay"
	"github.com/zoff-tech/go-pubsub-publisher/pkg/store"
)

func relay(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := setup(ctx, c.String("config-dir"))
	if err != nil {
		return err
	}
	// The relay context is cancelled on signal; closing still gets the full
	// termination bound.
	closeCtx := context.WithoutCancel(ctx)

	if d.cfg.Database.Type == "" {
		_ = d.close(closeCtx)
		return errors.New("database.type must be set to run the relay")
	}

	repo, err := store.NewRepository(ctx, d.cfg.Database)
	if err != nil {
		_ = d.close(closeCtx)
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	d.cleanup = append(d.cleanup, func() {
		if err := repo.Close(closeCtx); err != nil {
			d.logger.Warn().Err(err).Msg("failed to close repository")
		}
	})

	var metricsServer *metrics.Server
	if addr := d.cfg.Observability.MetricsAddr; addr != "" {
		metricsServer = metrics.NewServer(addr, d.registry)
		errCh := metricsServer.Start()
		go func() {
			if err := <-errCh; err != nil {
				d.logger.Error().Err(err).Msg("metrics server failed")
				stop()
			}
		}()
		d.logger.Info().Str("addr", addr).Msg("metrics server listening")
	}

	r := outbox.NewRelay(repo, d.client, d.cfg.Relay, d.logger, d.metrics)
	runErr := r.Run(ctx)

	d.logger.Info().Msg("shutting down")
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(closeCtx, shutdownGrace)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}
	return errors.Join(runErr, d.close(closeCtx))
}
