package cli

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"offline_sync_agent/internal/app"
	"offline_sync_agent/internal/domain/cache"
	"offline_sync_agent/internal/infra/backendapi"
	"offline_sync_agent/internal/infra/cachestore"
	"offline_sync_agent/internal/infra/config"
	idb "offline_sync_agent/internal/infra/database"
	"offline_sync_agent/internal/infra/logger"

	"github.com/sirupsen/logrus"
)

// components holds the pieces every command shares.
type components struct {
	cfg     *config.AppConfig
	store   *cachestore.Store
	client  *backendapi.Client
	queue   *app.PendingQueue
	preload *app.Preloader
	closers []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Log.WithError(err).Warn("Error during shutdown")
		}
	}
}

// openStore builds the cache with the configured fast backend in front of the file backend.
func openStore(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*cachestore.Store, []func() error, error) {
	file, err := cachestore.NewFileBackend(filepath.Join(cfg.DataDir, "files"))
	if err != nil {
		return nil, nil, err
	}

	var (
		fast    cachestore.Backend
		closers []func() error
	)
	switch cfg.FastBackend {
	case config.FastBackendPostgres:
		var db *sql.DB
		db, err = idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		pg := idb.NewPostgresCacheBackend(db, cfg.FastValueMaxSize)
		if err = pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		fast = pg
	default:
		bolt, err := cachestore.OpenBolt(filepath.Join(cfg.DataDir, "cache.db"), cfg.FastValueMaxSize)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, bolt.Close)
		fast = bolt
	}

	store, err := cachestore.New(cachestore.Options{
		Fast:              fast,
		File:              file,
		MaxFastValueBytes: cfg.FastValueMaxSize,
		KnownKeys:         cache.KnownKeys(),
		Logger:            log,
	})
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, nil, err
	}
	log.WithFields(logrus.Fields{"fast": fast.Name(), "data_dir": cfg.DataDir}).Info("Cache store opened")
	return store, closers, nil
}

func buildComponents(ctx context.Context, cfg *config.AppConfig) (*components, error) {
	base := logrus.NewEntry(logger.Log)
	store, closers, err := openStore(ctx, cfg, base)
	if err != nil {
		return nil, err
	}
	client := backendapi.NewClient(cfg.BackendBaseURL, cfg.SessionToken, cfg.HTTPTimeout, base)
	queue := app.NewPendingQueue(store, base)
	return &components{
		cfg:     cfg,
		store:   store,
		client:  client,
		queue:   queue,
		preload: app.NewPreloader(client, store, queue, client.HasSession, base),
		closers: closers,
	}, nil
}

func notificationSettings(cfg *config.AppConfig) app.NotificationSettings {
	s := app.DefaultNotificationSettings()
	s.CatchUpWindow = cfg.CatchUpWindow
	s.Buffer = cfg.NotificationBuffer
	s.Retention = cfg.RetentionWindow
	return s
}
