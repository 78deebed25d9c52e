// Package app wires the engine together: config, logging, the catalog and
// its journal, the remote store client, and the capture/upload/reconcile
// services. It also runs the periodic reconciliation loop.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safevoice/internal/catalog"
	"safevoice/internal/config"
	"safevoice/internal/dbx"
	"safevoice/internal/logging"
	"safevoice/internal/netx"
	"safevoice/internal/recorder"
	"safevoice/internal/repositories/recordings"
	"safevoice/internal/services"
	"safevoice/internal/session"
	"safevoice/internal/store"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	catalog    *catalog.Catalog
	uploader   *services.Uploader
	reconciler *services.Reconciler
	recorder   *recorder.Controller
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	identity := session.NewTokenFileProvider(cfg.SessionTokenPath)

	// Absence of a user id is a hard precondition failure for everything the
	// engine does, so fail at startup rather than per operation.
	userID, err := identity.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	db, err := recordings.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repo := recordings.NewSQLiteRepository(db)
	cat := catalog.New(repo)

	persisted, err := repo.GetAll(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load journal: %w", err)
	}

	// Rows the catalog refuses to load (neither a local nor a remote ref)
	// would be refused again on every start, so purge them now, atomically.
	if skipped := cat.Load(persisted); len(skipped) > 0 {
		logger.Warn(ctx, "purging invalid journal rows", "count", len(skipped))
		err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			txRepo := recordings.NewSQLiteRepository(tx)
			for _, identity := range skipped {
				if err := txRepo.Delete(ctx, identity); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("purge journal: %w", err)
		}
	}

	st, err := store.NewS3Client(ctx, store.Config{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Bucket:          cfg.S3Bucket,
		UserID:          userID,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store init error: %w", err)
	}

	uploader := services.NewUploader(cat, st, logger, cfg.AccessURLTTL, cfg.UploadAttemptBudget)
	reconciler := services.NewReconciler(cat, st, uploader, logger, cfg.AccessURLTTL, cfg.UploadParallelism)

	backend := recorder.NewFFmpegBackend(cfg.CaptureDevice, cfg.CaptureInput)
	// Desktop builds resolve microphone access at the OS level before this
	// process runs; the broker only reports that decision.
	ctrl := recorder.NewController(backend, recorder.StaticBroker(true), identity, cat, uploader, cfg.RecordingsDir, logger)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		catalog:    cat,
		uploader:   uploader,
		reconciler: reconciler,
		recorder:   ctrl,
	}, nil
}

func (a *App) Logger() logging.Logger           { return a.logger }
func (a *App) Catalog() *catalog.Catalog        { return a.catalog }
func (a *App) Uploader() *services.Uploader     { return a.uploader }
func (a *App) Reconciler() *services.Reconciler { return a.reconciler }
func (a *App) Recorder() *recorder.Controller   { return a.recorder }

// Close drains background uploads and releases the journal.
func (a *App) Close() error {
	a.uploader.Wait()
	return a.db.Close()
}

// NotifyContext returns a context cancelled by SIGINT/SIGTERM/SIGQUIT.
func NotifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
}

// skipReconcilePass reports whether a periodic pass should be skipped because
// the configured endpoint override is unreachable. An empty endpoint means the
// SDK talks to the real AWS host: there is nothing to probe, and the pass
// itself is the connectivity check.
func skipReconcilePass(ctx context.Context, endpoint string, timeout time.Duration) bool {
	if endpoint == "" {
		return false
	}
	return !netx.EndpointReachable(ctx, endpoint, timeout)
}

// StartReconcileLoop runs reconciliation passes on the configured interval
// until ctx is cancelled. While the storage endpoint is unreachable the pass
// is skipped rather than burning upload attempts on a dead network. A failing
// pass is logged and retried on the next tick; new captures stay responsive
// throughout.
func (a *App) StartReconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(a.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if skipReconcilePass(ctx, a.config.S3Endpoint, 5*time.Second) {
				a.logger.Warn(ctx, "storage endpoint unreachable, skipping reconciliation", "endpoint", a.config.S3Endpoint)
				continue
			}
			passCtx, cancel := context.WithTimeout(ctx, a.config.ReconcileInterval)
			if _, err := a.reconciler.Reconcile(passCtx); err != nil {
				a.logger.Warn(ctx, "periodic reconciliation failed", "error", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
