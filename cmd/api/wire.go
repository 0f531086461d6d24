package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-logr/logr"

	"github.com/ritza-co/bryntum-backend-guides/internal/app"
	"github.com/ritza-co/bryntum-backend-guides/internal/config"
	"github.com/ritza-co/bryntum-backend-guides/internal/export"
	"github.com/ritza-co/bryntum-backend-guides/internal/metrics"
	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
	"github.com/ritza-co/bryntum-backend-guides/internal/revision"
	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/search"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// runtime holds the wired service and the resources to release on exit.
type runtime struct {
	service *app.Service
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func openStore(ctx context.Context, cfg config.Config, backend *schema.Backend) (store.Store, error) {
	return store.Connect(ctx, store.Options{
		Driver:         cfg.StoreDriver,
		DSN:            cfg.StoreDSN(),
		ConnectTimeout: cfg.DBConnectTimeout,
	}, backend)
}

func openRuntime(ctx context.Context, cfg config.Config, logger logr.Logger) (*runtime, error) {
	backend, err := schema.Lookup(cfg.Backend)
	if err != nil {
		return nil, err
	}
	rt := &runtime{}

	st, err := openStore(ctx, cfg, backend)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = st.Close() })

	checks := map[string]app.Pinger{}
	var revisions reconcile.Revisions = revision.NewMemoryCounter()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for %s revisions", backend.Name)
		counter, err := revision.NewRedisCounter(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = counter.Close() })
		revisions = counter
		checks["redis"] = counter
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, backend.Name)
	}
	searchService := search.NewService(backend, meiliClient, search.NewStoreScan(backend, st))
	rt.closers = append(rt.closers, searchService.Close)

	var putter export.ObjectPutter
	if strings.TrimSpace(cfg.ExportEndpoint) != "" {
		minioPutter, err := export.NewMinioPutter(ctx, export.MinioOptions{
			Endpoint:  cfg.ExportEndpoint,
			Bucket:    cfg.ExportBucket,
			AccessKey: cfg.ExportAccessKey,
			SecretKey: cfg.ExportSecretKey,
			UseSSL:    cfg.ExportUseSSL,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("export storage failed: %w", err)
		}
		putter = minioPutter
	}

	recorder := metrics.New(backend.Name)
	engine, err := reconcile.New(backend, st,
		reconcile.WithLogger(logger.WithName("reconcile")),
		reconcile.WithObserver(recorder),
		reconcile.WithObserver(searchService),
		reconcile.WithRevisions(revisions),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.service = app.New(engine, app.Options{
		Search:   searchService,
		Exporter: export.NewService(backend.Name, engine, putter, logger.WithName("export")),
		Metrics:  recorder,
		Checks:   checks,
		Logger:   logger.WithName("app"),
	})
	searchService.ReindexAll(ctx)
	return rt, nil
}
