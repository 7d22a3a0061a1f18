package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/censor-ci/censor/internal/engine"
	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/metrics"
	"github.com/censor-ci/censor/pkg/process"
)

func (c *CLI) newWorkerCmd() *cobra.Command {
	var concurrency int
	var spool string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute queued builds until interrupted",
		Long: `Start the build worker. Build requests dropped as YAML or JSON files into
the spool directory are turned into builds and executed, at most
--concurrency at a time. Changes to the settings file are picked up
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("concurrency") {
				c.settings.Worker.Concurrency = concurrency
			}
			if spool != "" {
				c.settings.Worker.Spool = spool
			}
			if metricsAddr != "" {
				c.settings.Metrics.Addr = metricsAddr
			}
			return c.runWorker(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "maximum number of builds running at once")
	cmd.Flags().StringVar(&spool, "spool", "", "directory watched for build requests")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func (c *CLI) runWorker(parent context.Context) error {
	rc := NewRuntimeConfig(c.config, parent)
	ctx, cancel := context.WithCancel(rc.Context)
	defer cancel()

	factory := engine.NewDependencyFactory(c.settings, c.logger)
	deps, err := factory.CreateDefaults()
	if err != nil {
		return err
	}
	defer deps.Store.Close()

	var server *http.Server
	if addr := c.settings.Metrics.Addr; addr != "" {
		reg := prometheus.NewRegistry()
		deps.Recorder = metrics.NewPrometheusRecorder(reg)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(reg))
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	executor := engine.NewExecutor(deps, factory.ExecutorOptions(), c.logger)
	worker := engine.NewWorker(executor, deps.Store, c.settings.Worker.Concurrency, c.logger,
		engine.WithWorkerRecorder(deps.Recorder))
	spool := engine.NewSpool(c.settings.Worker.Spool, worker, c.logger)

	pm := process.NewManager(c.logger)
	pm.RegisterShutdownHandler(cancel)
	pm.SetHeartbeat(time.Minute, func() {
		c.logger.Debug("Worker alive", logger.WithField("running", worker.Running()))
	})
	pm.Start(ctx)
	defer pm.Stop()

	if c.settingsFile != "" {
		rm := config.NewReloadManager(c.settingsFile, c.logger)
		rm.AddCallback(func(s *config.Settings, err error) {
			if err != nil {
				return
			}
			executor.SetProjects(s)
		})
		if err := rm.StartWatching(ctx); err != nil {
			c.logger.Warn("Settings will not be reloaded", logger.WithField("error", err))
		} else {
			defer rm.StopWatching()
		}
	}

	group, gctx := engine.NewSafeGroup(ctx, c.logger)
	group.Go(func() error { return worker.Run(gctx) })
	group.Go(func() error { return spool.Run(gctx) })
	if server != nil {
		group.Go(func() error {
			c.logger.Info("Serving metrics", logger.WithField("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return server.Shutdown(shutdownCtx)
		})
	}

	c.console.Info(fmt.Sprintf("Worker started (concurrency %d, spool %s)",
		c.settings.Worker.Concurrency, c.settings.Worker.Spool))

	err = group.Wait()
	c.console.Success("Worker stopped")
	return err
}
