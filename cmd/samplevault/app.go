package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"samplevault/internal/blobstore"
	"samplevault/internal/config"
	"samplevault/internal/locker"
	"samplevault/internal/service"
	"samplevault/internal/store"
	"samplevault/internal/telemetry"
)

// app holds everything one command invocation opens.
type app struct {
	cfg      *config.Config
	store    *store.Store
	blobs    blobstore.BlobStore
	locker   locker.Locker
	registry *prometheus.Registry
	engine   *service.Engine
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.OpenWithOptions(store.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DatabaseURL,
	})
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.Open(ctx, blobstore.Options{
		Driver: cfg.Blobs.Driver,
		Root:   cfg.BlobRoot(),
		S3: blobstore.S3Config{
			Bucket:    cfg.Blobs.S3.Bucket,
			Region:    cfg.Blobs.S3.Region,
			Endpoint:  cfg.Blobs.S3.Endpoint,
			Prefix:    cfg.Blobs.S3.Prefix,
			PathStyle: cfg.Blobs.S3.PathStyle,
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	lk, err := locker.New(locker.Options{
		Driver:    cfg.Locking.Driver,
		RedisAddr: cfg.Locking.RedisAddr,
		TTL:       cfg.Locking.TTLDuration(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	observer, err := telemetry.NewPrometheusObserver(cfg.Telemetry.Namespace, registry)
	if err != nil {
		_ = lk.Close()
		_ = st.Close()
		return nil, err
	}

	engine, err := service.NewEngine(st, blobs, service.Options{
		Logger:           slog.Default(),
		Observer:         observer,
		Locker:           lk,
		Patterns:         cfg.Pairing.Patterns,
		GCBatchSize:      cfg.Attachments.GCBatchSize,
		BatchConcurrency: cfg.Attachments.BatchConcurrency,
		BlobCacheSize:    cfg.Attachments.BlobCacheSize,
	})
	if err != nil {
		_ = lk.Close()
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    st,
		blobs:    blobs,
		locker:   lk,
		registry: registry,
		engine:   engine,
	}, nil
}

// Close flushes the metrics textfile and releases the locker and database.
func (a *app) Close() error {
	var errs []error
	if err := telemetry.WriteTextfile(a.cfg.Telemetry.Textfile, a.registry); err != nil {
		errs = append(errs, err)
	}
	if err := a.locker.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withApp opens the app, runs fn and closes it, keeping fn's error first.
func withApp(ctx context.Context, cfg *config.Config, fn func(*app) error) (err error) {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}
