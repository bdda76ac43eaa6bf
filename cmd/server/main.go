package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/app"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "json")
		logger.New("server").WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Init(cfg.LogLevel, cfg.LogFormat)
		logger.New("server").WithError(err).Fatal("Failed to start")
	}
	defer a.Close()
	log := logger.New("server")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WorkerEnabled {
		sched, err := a.Scheduler(ctx)
		if err != nil {
			log.WithError(err).Fatal("Failed to create scheduler")
		}
		g.Go(func() error { return sched.Start(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped with error")
		a.Close()
		os.Exit(1)
	}
	log.Info("server stopped")
}
