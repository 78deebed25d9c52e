// Package recorder owns the single active capture session. Starting a
// capture hands out a session token; stopping consumes it, materializes the
// recording file, and hands the new catalog entry off for upload without
// blocking the caller.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"safevoice/internal/catalog"
	"safevoice/internal/common"
	"safevoice/internal/filex"
	"safevoice/internal/logging"
	"safevoice/internal/models"
	"safevoice/internal/session"
)

var ErrSessionNotActive = errors.New("capture session is not active")

// Broker is the external permission subsystem. The engine only checks,
// never requests, microphone access.
type Broker interface {
	MicrophoneGranted(ctx context.Context) (bool, error)
}

// Backend drives the capture hardware and materializes a file at the path
// given to Start.
type Backend interface {
	Start(ctx context.Context, path string) error

	// Stop ends the capture and returns the recorded duration in seconds if
	// the backend knows it; 0 means unknown and the controller falls back to
	// its elapsed-time counter.
	Stop(ctx context.Context) (int, error)
}

// UploadQueue is the asynchronous handoff to the upload pipeline. Enqueue
// must not block; progress is observed through the catalog's upload-state
// transitions.
type UploadQueue interface {
	Enqueue(identity string)
}

// Session is the token for one active capture. Start hands it out,
// StopAndSubmit consumes it; only the holder can stop the capture.
type Session struct {
	path      string
	userID    string
	startedAt time.Time
}

// StartedAt is the capture timestamp the identity is derived from.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Elapsed returns how long the session has been recording.
func (s *Session) Elapsed(now time.Time) time.Duration { return now.Sub(s.startedAt) }

type Controller struct {
	mu     sync.Mutex
	active *Session

	backend  Backend
	broker   Broker
	identity session.Provider
	catalog  *catalog.Catalog
	queue    UploadQueue
	dir      string
	log      logging.Logger
	now      func() time.Time
}

func NewController(backend Backend, broker Broker, identity session.Provider, cat *catalog.Catalog, queue UploadQueue, dir string, log logging.Logger) *Controller {
	return &Controller{
		backend:  backend,
		broker:   broker,
		identity: identity,
		catalog:  cat,
		queue:    queue,
		dir:      dir,
		log:      log,
		now:      time.Now,
	}
}

// Start begins a capture session. It fails with common.ErrPermissionDenied
// when microphone access was not previously granted and with
// common.ErrCaptureActive when a session is already live.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}

	granted, err := c.broker.MicrophoneGranted(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission check: %w", err)
	}
	if !granted {
		return nil, common.ErrPermissionDenied
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, common.ErrCaptureActive
	}

	if _, err := filex.EnsureDir(c.dir); err != nil {
		return nil, err
	}

	// The file gets a throwaway name until the capture is finalized under
	// its identity-derived timestamp.
	path := filepath.Join(c.dir, "capture-"+uuid.NewString()+common.RecordingSuffix)

	if err := c.backend.Start(ctx, path); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	s := &Session{path: path, userID: userID, startedAt: c.now()}
	c.active = s

	c.log.Info(ctx, "capture started", "path", path)
	return s, nil
}

// StopAndSubmit stops the capture, inserts the recording into the catalog in
// local-only state and enqueues it for upload. The upload itself never
// blocks the caller; its outcome is published through the catalog.
func (c *Controller) StopAndSubmit(ctx context.Context, s *Session) (*models.Recording, error) {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	// The token is consumed even if stopping fails: a broken capture cannot
	// be resumed.
	c.active = nil
	c.mu.Unlock()

	backendDuration, err := c.backend.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCaptureUnavailable, err)
	}

	ok, err := filex.Exists(s.path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrCaptureUnavailable
	}

	size, err := filex.Size(s.path)
	if err != nil {
		// The file vanished between stop and read.
		return nil, err
	}

	duration := backendDuration
	if duration <= 0 {
		duration = int(c.now().Sub(s.startedAt).Round(time.Second) / time.Second)
	}

	rec := &models.Recording{
		Identity:        models.NewIdentity(s.userID, s.startedAt),
		Local:           &models.LocalRef{Path: s.path, SizeBytes: size},
		DurationSeconds: duration,
		CapturedAt:      s.startedAt,
		UploadState:     models.UploadStateNotUploaded,
	}

	if err := c.catalog.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	c.queue.Enqueue(rec.Identity)

	c.log.Info(ctx, "capture submitted", "identity", rec.Identity, "size", size, "duration", duration)
	return rec.Clone(), nil
}
