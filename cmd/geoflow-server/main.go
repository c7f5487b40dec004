package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/geoflow/internal/core/config"
	"github.com/mohammed-shakir/geoflow/internal/core/executor"
	"github.com/mohammed-shakir/geoflow/internal/core/httpclient"
	"github.com/mohammed-shakir/geoflow/internal/core/observability"
	"github.com/mohammed-shakir/geoflow/internal/core/ogc"
	"github.com/mohammed-shakir/geoflow/internal/core/server"
	"github.com/mohammed-shakir/geoflow/internal/crs"
	"github.com/mohammed-shakir/geoflow/internal/logger"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "geoflow",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geoflow",
		"addr", cfg.Addr,
		"version", Version,
		"wfs", cfg.WFSBaseURL)

	httpClient := httpclient.NewOutbound()
	owsURL := ogc.OWSEndpoint(cfg.WFSBaseURL)

	exec, err := executor.New(appLog, httpClient, owsURL)
	if err != nil {
		appLog.Error("failed to initialize executor", "err", err)
		return 1
	}
	exec.SetPageSize(cfg.WFSPageSize)

	transformer, err := crs.NewTransformer(cfg.TransformCacheSize)
	if err != nil {
		appLog.Error("failed to initialize transformer", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{Executor: exec, Transformer: transformer}
	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
