package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/events"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/lock"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/scheduler"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/source"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/notify"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/services"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

// App holds everything the entrypoints share.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Repo      ports.FactRepository
	Facts     *services.FactService
	Ingestion *services.IngestionService
	Notices   *notify.Bus

	closers []io.Closer
}

// New validates cfg and wires the store, services and notice sinks.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.New("fact-collector")

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", repository.Backend(cfg), err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Repo:    repo,
		Notices: notify.NewBus(),
		closers: []io.Closer{repo},
	}

	a.Notices.Subscribe(events.NewLogSink(logger.New("notices")))
	if len(cfg.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger.New("kafka"))
		a.Notices.Subscribe(sink)
		a.closers = append(a.closers, sink)
	}

	src := source.NewHTTPSource(cfg.SourceURL, cfg.FetchTimeout, nil)
	a.Facts = services.NewFactService(repo, cfg.PageSize)
	a.Ingestion = services.NewIngestionService(repo, src, a.Notices, logger.New("ingestion"))
	return a, nil
}

func (a *App) Router() http.Handler {
	return handler.NewRouter(a.Config, a.Facts, logger.New("http"))
}

// Scheduler builds the ingestion scheduler with the configured run lock.
func (a *App) Scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	var locker ports.RunLocker
	switch a.Config.LockBackend {
	case "", "none":
	case "local":
		locker = lock.NewLocalLocker()
	case "redis":
		client, err := lock.Dial(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		locker = lock.NewRedisLocker(client, "fact-collector:ingestion", a.Config.LockTTL)
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.Config.LockBackend)
	}

	return scheduler.New(a.Ingestion, scheduler.Options{
		Interval:   a.Config.IngestInterval,
		RunOnStart: a.Config.RunOnStart,
		Locker:     locker,
	}, logger.New("scheduler")), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
