package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/cache"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/datetime"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/adapter"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/connector"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/filters"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/payload"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/email/inbound/postmaster"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/metrics"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/notifications"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner/tasks"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/store"
)

// app holds everything a command needs. Build it with newApp and release it
// with close.
type app struct {
	loader   *config.Loader
	logger   *zap.Logger
	store    *store.Store
	service  *postmaster.Service
	registry *prometheus.Registry
	status   *cache.PollStatusStore
	notifier *notifications.Sender
	factory  connector.Factory
}

type appOption func(*app)

// withFactory replaces the mailbox factory.
func withFactory(f connector.Factory) appOption {
	return func(a *app) {
		a.factory = f
	}
}

func newApp(ctx context.Context, loader *config.Loader, logger *zap.Logger, opts ...appOption) (*app, error) {
	cfg := loader.Get()
	a := &app{loader: loader, logger: logger, factory: connector.DefaultFactory(logger)}
	for _, opt := range opts {
		opt(a)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.App.Timezone, err)
	}
	normalizer := datetime.NewNormalizer(
		datetime.WithLocation(loc),
		datetime.WithUTCOffset(cfg.App.ApplyUTCOffset),
		datetime.With24Hour(cfg.App.Hour24),
	)

	subject, err := filters.NewSubjectFilter(cfg.Ingest, logger.Named("filters"))
	if err != nil {
		return nil, err
	}
	chain := filters.NewChain(filters.RequiredHeadersFilter{}, subject)

	st, err := store.OpenConfig(ctx, cfg.Database, store.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	a.store = st

	extractor := payload.NewExtractor(normalizer, cfg.App.DateFormat, cfg.App.TimeFormat, payload.WithLogger(logger.Named("payload")))
	processor := postmaster.NewJobProcessor(extractor, st, logger.Named("processor"))

	svcOpts := []postmaster.Option{postmaster.WithLogger(logger.Named("postmaster"))}
	if cfg.Outbound.Enabled {
		a.notifier = notifications.NewSenderFromConfig(cfg.Outbound, logger.Named("outbound"))
		svcOpts = append(svcOpts, postmaster.WithNotifier(a.notifier, cfg.Ingest.WarnOnCollect))
	}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		svcOpts = append(svcOpts, postmaster.WithRecorder(metrics.New(a.registry)))
	}
	if cfg.Status.Enabled {
		a.status = cache.NewPollStatusStore(cfg.Status, logger.Named("status"))
		if err := a.status.Ping(ctx); err != nil {
			logger.Warn("poll status store unreachable", zap.String("addr", cfg.Status.Addr()), zap.Error(err))
		}
		svcOpts = append(svcOpts, postmaster.WithStatusStore(a.status))
	}

	a.service = postmaster.NewService(a.factory, chain, processor, st, svcOpts...)
	return a, nil
}

// accounts reads the inbound servers from the current configuration so a
// reload changes the next run.
func (a *app) accounts() []connector.Account {
	return adapter.AccountsFromConfig(a.loader.Get().Inbound)
}

func (a *app) tasks() (*runner.TaskRegistry, error) {
	reg := runner.NewTaskRegistry()
	task := tasks.NewCollectTask(a.service, a.accounts, a.loader.Get().Schedule, a.logger.Named("collect"))
	if err := reg.Register(task); err != nil {
		return nil, err
	}
	return reg, nil
}

// serveMetrics exposes the registry until ctx is done.
func (a *app) serveMetrics(ctx context.Context, cfg config.MetricsConfig) {
	if a.registry == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(a.registry))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (a *app) close() {
	if a.status != nil {
		_ = a.status.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", zap.Error(err))
		}
	}
}
