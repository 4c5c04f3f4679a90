package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManouchehrRasoulli/rfskeeper/pkg/config"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/keeper"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/logger"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/manager"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/metrics"
	"github.com/ManouchehrRasoulli/rfskeeper/pkg/watcher"
)

func main() {
	var configFile string

	flag.StringVar(&configFile, "config", "config.yml", "specify configuration file for service.")
	flag.StringVar(&configFile, "c", "config.yml", "specify configuration file for service.")
	flag.Parse()

	lg := log.New(os.Stdout, "rfskeeper --> ", 1|4)
	clg := logger.NewColorLogger(lg)
	clg.Printcf(logger.ColorGreen, "start rfskeeper : with config file %v", configFile)

	cfg, err := config.ReadConfig(configFile)
	if err != nil {
		clg.Errorf("error rfskeeper : got error %v on reading configuration file %s", err, configFile)
		os.Exit(1)
	}

	clg.Infof("config rfskeeper : pool: %d, backend: %s, poll: %v, resync: %q, files: %d",
		cfg.PoolSize, cfg.Backend, cfg.PollTimeout, cfg.Resync, len(cfg.Files))

	if err := run(cfg, lg); err != nil {
		clg.Errorf("error rfskeeper : %v", err)
		os.Exit(1)
	}
	clg.Printcf(logger.ColorGreen, "stop rfskeeper : bye")
}

func run(cfg *config.Config, lg *log.Logger) error {
	clg := logger.NewColorLogger(lg)
	collector := metrics.NewCollector(metrics.DefaultNamespace, nil)

	backend, err := watcher.NewBackend(watcher.BackendName(cfg.Backend))
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	monitor, err := watcher.New(
		watcher.WithBackend(backend),
		watcher.WithPoolSize(cfg.PoolSize),
		watcher.WithPollTimeout(cfg.PollTimeout),
		watcher.WithLogger(lg),
		watcher.WithMetrics(collector))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("start monitor: %w", err)
	}
	defer monitor.Close()

	mgr, err := manager.New(monitor, manager.WithLogger(lg), manager.WithResync(cfg.Resync))
	if err != nil {
		return err
	}
	defer mgr.Close()

	for _, f := range cfg.Files {
		l := newLoader(f, lg, collector)
		if err := mgr.Add(l); err != nil {
			return err
		}
	}
	mgr.Start()

	var srv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			clg.Infof("metrics rfskeeper : serving /metrics on %s", cfg.MetricsAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				clg.Errorf("metrics rfskeeper : got error %v on metrics server", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	clg.Printcf(logger.ColorYellow, "stop rfskeeper : got signal %v, shutting down", s)

	// manager and monitor are closed by the deferred calls, in that order, after
	// the metrics server.
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			clg.Warnf("metrics rfskeeper : got error %v on shutdown", err)
		}
	}
	return nil
}

// newLoader builds the keeper for one configured file. A file that cannot be
// loaded yet is served empty until it shows up.
func newLoader(f config.FileConfig, lg *log.Logger, collector *metrics.Collector) manager.Loader {
	clg := logger.NewColorLogger(lg)
	opts := []keeper.Option{
		keeper.WithLogger(lg),
		keeper.WithMetrics(collector),
		keeper.WithSkipUnchanged(f.SkipUnchanged),
		keeper.WithOnPublish(func(m keeper.Meta) {
			clg.Printcf(logger.ColorGreen, "reload rfskeeper : %s is now at version %d", m.Name, m.Version)
		}),
	}

	switch f.Format {
	case config.FormatYAML:
		return keeper.NewWithDefault(f.Path, keeper.YAML[map[string]any](), nil, opts...)
	case config.FormatLines:
		return keeper.NewWithDefault(f.Path, keeper.Lines, nil, opts...)
	default:
		return keeper.NewWithDefault(f.Path, keeper.JSON[map[string]any](), nil, opts...)
	}
}
