package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/plantsim/internal/config"
	"github.com/user/plantsim/pkg/logging"
	"github.com/user/plantsim/pkg/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or JSON); defaults when empty")
	transport := flag.String("transport", "", "override transport type: mqtt, kafka, nats, stdout")
	metricsAddr := flag.String("metrics-addr", "", "override Prometheus listen address, e.g. :9100")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logOutput := flag.String("log-output", "stderr", "log output: stderr, stdout or a file path")
	flag.Parse()

	out, closeLog, err := logging.Open(*logOutput)
	if err != nil {
		log.Fatalf("Failed to open log output: %v", err)
	}
	defer closeLog()
	logger := logging.New(out, *logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Transport.Type = *transport
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}
	for _, warning := range cfg.Validate() {
		logger.Warn("config warning", "warning", warning)
	}

	sink, err := supervisor.BuildSink(cfg, logger)
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}

	sup, err := supervisor.New(cfg, sink, logger)
	if err != nil {
		logger.Error("failed to build supervisor", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("supervisor exited", "error", err)
		os.Exit(1)
	}
}
