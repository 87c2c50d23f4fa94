// Command tabletserver runs one tablet server process: it loads a
// TabletServerConfig, wires the storage engine's collaborators
// (metadata store, shared write-ahead log, file tracker, background
// compactor), and exposes pkg/rpc's Insert/Erase/ScanOpen/ScanMore/
// ScanClose surface over HTTP, the way the teacher's
// pkg/tabletserver/server.go and pkg/master/server.go exposed their
// handlers — net/http + encoding/json, no generated transport code.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"

	"github.com/kdi-go/kdi/internal/metastore"
	"github.com/kdi-go/kdi/pkg/compactor"
	"github.com/kdi-go/kdi/pkg/config"
	"github.com/kdi-go/kdi/pkg/filetracker"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/metrics"
	"github.com/kdi-go/kdi/pkg/rpc"
	"github.com/kdi-go/kdi/pkg/walog"
)

func main() {
	configPath := flag.String("config", "", "path to a TabletServerConfig YAML file")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "tabletserver: -config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tabletserver: load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tabletserver: parse log level: %v\n", err)
		os.Exit(1)
	}
	if err := kdilog.Configure(cfg.Log.Dev, level); err != nil {
		fmt.Fprintf(os.Stderr, "tabletserver: configure logging: %v\n", err)
		os.Exit(1)
	}
	defer kdilog.Sync() //nolint:errcheck

	store, err := metastore.NewFileStore(cfg.MetaStore.Dir)
	if err != nil {
		kdilog.Error("open metadata store", kdilog.Err(err))
		os.Exit(1)
	}

	logger, err := walog.Open(walog.Options{
		Dir:             filepath.Join(cfg.DataDir, "wal"),
		MaxSegmentBytes: cfg.WAL.MaxSegmentBytes,
		Compress:        cfg.WAL.Compress,
	})
	if err != nil {
		kdilog.Error("open write-ahead log", kdilog.Err(err))
		os.Exit(1)
	}
	defer logger.Close() //nolint:errcheck

	tracker := filetracker.New()
	bg := compactor.New(cfg.Compactor.Workers)
	defer bg.Stop()

	reg := metrics.DefaultRegistry()
	server := rpc.NewServer(store, logger, tracker, bg)
	api := newHTTPAPI(server, reg)

	mux := http.NewServeMux()
	api.register(mux)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg.PrometheusRegistry(), promhttp.HandlerOpts{}))

	apiSrv := &http.Server{Addr: cfg.Addr, Handler: mux}
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}

	errc := make(chan error, 2)
	go func() {
		kdilog.Info("rpc api listening", kdilog.String("addr", cfg.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	go func() {
		kdilog.Info("metrics listening", kdilog.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		kdilog.Info("shutting down", kdilog.String("signal", sig.String()))
	case err := <-errc:
		kdilog.Error("server error", kdilog.Err(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)
	kdilog.Info("server exited")
}
