package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/app"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// The worker only runs the ingestion schedule; cmd/server serves the API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "json")
		logger.New("worker").WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Init(cfg.LogLevel, cfg.LogFormat)
		logger.New("worker").WithError(err).Fatal("Failed to start")
	}
	defer a.Close()
	log := logger.New("worker")

	sched, err := a.Scheduler(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to create scheduler")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(gctx) })

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("worker stopped with error")
		a.Close()
		os.Exit(1)
	}
	log.Info("worker stopped")
}
