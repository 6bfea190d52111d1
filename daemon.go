package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/oneclouds/oneclouds/internal/config"
	"github.com/oneclouds/oneclouds/internal/metrics"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync all accounts continuously",
		Long:  "Run sync sweeps over every active account at the configured interval,\nreloading configuration when the config file changes. With a metrics\naddress configured, Prometheus metrics are served over HTTP.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	collector := metrics.New()

	orch, err := a.orchestrator(collector)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server

	if addr := a.cfg.Daemon.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())

		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			a.logger.Info("metrics listener started", slog.String("addr", addr))

			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics listener failed", slog.String("error", err.Error()))
			}
		}()
	}

	reload, stopWatch := watchConfig(a.logger)
	defer stopWatch()

	interval := config.Duration(a.cfg.Sync.Interval, 15*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("daemon started", slog.Duration("interval", interval))

	// First sweep runs immediately rather than one interval in.
	sweep(ctx, a.logger, orch)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("daemon shutting down")

			if metricsSrv != nil {
				timeout := config.Duration(a.cfg.Sync.ShutdownTimeout, 30*time.Second)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
				_ = metricsSrv.Shutdown(shutdownCtx)
				cancel()
			}

			return nil

		case <-reload:
			a.logger.Info("config file changed, reloading")

			if err := loadConfig(); err != nil {
				a.logger.Error("config reload failed, keeping previous config", slog.String("error", err.Error()))
				continue
			}

			a.cfg = resolvedCfg

			if next := config.Duration(a.cfg.Sync.Interval, interval); next != interval {
				interval = next
				ticker.Reset(interval)
				a.logger.Info("sync interval updated", slog.Duration("interval", interval))
			}

		case <-ticker.C:
			sweep(ctx, a.logger, orch)
		}
	}
}

func sweep(ctx context.Context, logger *slog.Logger, orch syncRunner) {
	if err := orch.RunAll(ctx); err != nil {
		logger.Error("sync sweep finished with errors", slog.String("error", err.Error()))
	}
}

// syncRunner lets daemon tests substitute a fake orchestrator.
type syncRunner interface {
	RunAll(ctx context.Context) error
}

// watchConfig emits on the returned channel when the config file is written.
// Editors often replace rather than write in place, so the parent directory
// is watched and events are filtered by name.
func watchConfig(logger *slog.Logger) (<-chan struct{}, func()) {
	changes := make(chan struct{}, 1)

	cfgPath := config.DefaultConfigPath()
	if flagConfigPath != "" {
		cfgPath = flagConfigPath
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watching disabled", slog.String("error", err.Error()))
		return changes, func() {}
	}

	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		logger.Warn("config watching disabled", slog.String("error", err.Error()))
		watcher.Close()

		return changes, func() {}
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}

				if ev.Name != cfgPath {
					continue
				}

				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					select {
					case changes <- struct{}{}:
					default:
					}
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				logger.Warn("config watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return changes, func() { watcher.Close() }
}
