// Package services contains the upload coordinator and the reconciler: the
// components that move recordings between local-only and synced state.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"

	"safevoice/internal/catalog"
	"safevoice/internal/common"
	"safevoice/internal/filex"
	"safevoice/internal/logging"
	"safevoice/internal/models"
	"safevoice/internal/store"
)

// retryBackoff is the pause before the single automatic re-attempt of a
// transient upload failure. Further retries are manual or scheduled.
const retryBackoff = 500 * time.Millisecond

// Uploader coordinates upload attempts: the immediate post-capture upload,
// manual retries, and orphan cleanup. A per-identity guard ensures a single
// identity is never uploaded twice concurrently; unrelated identities
// proceed in parallel.
type Uploader struct {
	catalog       *catalog.Catalog
	store         store.Client
	log           logging.Logger
	urlTTL        time.Duration
	attemptBudget int

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewUploader(cat *catalog.Catalog, st store.Client, log logging.Logger, urlTTL time.Duration, attemptBudget int) *Uploader {
	return &Uploader{
		catalog:       cat,
		store:         st,
		log:           log,
		urlTTL:        urlTTL,
		attemptBudget: attemptBudget,
		inflight:      make(map[string]struct{}),
	}
}

// Enqueue implements the recorder's asynchronous handoff. It never blocks;
// the outcome is published through the catalog's upload-state transitions.
func (u *Uploader) Enqueue(identity string) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		if err := u.Upload(context.Background(), identity); err != nil {
			u.log.Warn(context.Background(), "background upload failed", "identity", identity, "error", err)
		}
	}()
}

// Wait blocks until all enqueued background uploads have finished.
func (u *Uploader) Wait() { u.wg.Wait() }

func (u *Uploader) begin(identity string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.inflight[identity]; ok {
		return false
	}
	u.inflight[identity] = struct{}{}
	return true
}

func (u *Uploader) end(identity string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.inflight, identity)
}

func (u *Uploader) isInflight(identity string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.inflight[identity]
	return ok
}

// Upload pushes one local recording to the remote store. Transient failures
// are retried once; the terminal outcome is written to the catalog. A lost
// local file is a data-loss event: the entry is dropped, not failed.
func (u *Uploader) Upload(ctx context.Context, identity string) error {
	if !u.begin(identity) {
		return common.ErrUploadInFlight
	}
	defer u.end(identity)

	rec, ok := u.catalog.Get(identity)
	if !ok {
		return common.ErrorNotFound
	}
	if rec.UploadState == models.UploadStateUploaded {
		return nil
	}
	if rec.Local == nil {
		// Cloud-only entries have nothing to push.
		return nil
	}

	body, err := filex.ReadAll(rec.Local.Path)
	if errors.Is(err, common.ErrFileMissing) {
		u.log.Error(ctx, "local file vanished before upload, dropping recording", "identity", identity, "path", rec.Local.Path)
		if _, uerr := u.catalog.Update(ctx, identity, func(r *models.Recording) { r.Local = nil }); uerr != nil {
			return uerr
		}
		return common.ErrFileMissing
	}
	if err != nil {
		return err
	}

	if _, err := u.catalog.Update(ctx, identity, func(r *models.Recording) {
		r.UploadState = models.UploadStateUploading
		r.Attempts++
	}); err != nil {
		return err
	}

	ref, uploadErr := u.attempt(ctx, identity, body)
	if uploadErr != nil {
		if _, err := u.catalog.Update(ctx, identity, func(r *models.Recording) {
			r.UploadState = models.UploadStateFailed
			r.UploadError = uploadErr.Error()
		}); err != nil {
			return err
		}
		u.log.Warn(ctx, "upload failed", "identity", identity, "error", uploadErr)
		return uploadErr
	}

	if _, err := u.catalog.Update(ctx, identity, func(r *models.Recording) {
		r.UploadState = models.UploadStateUploaded
		r.UploadError = ""
		if r.Remote == nil || r.Remote.Key != ref.Key {
			r.Remote = ref
		}
	}); err != nil {
		return err
	}

	u.log.Info(ctx, "upload finished", "identity", identity, "size", len(body))
	return nil
}

// attempt performs the store upload with a single bounded retry on transient
// errors. An identity collision means the earlier attempt already succeeded
// remotely and is treated as success.
func (u *Uploader) attempt(ctx context.Context, identity string, body []byte) (*models.RemoteRef, error) {
	var ref *models.RemoteRef

	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := u.store.Upload(ctx, identity, body)
		if errors.Is(err, common.ErrObjectExists) {
			u.log.Warn(ctx, "object already exists remotely, treating upload as complete", "identity", identity)
			ref = r
			return nil
		}
		if err != nil {
			if errors.Is(err, common.ErrTransientStore) {
				return retry.RetryableError(err)
			}
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Retry re-attempts the upload of one failed recording. It is a no-op for an
// already uploaded identity and fails with common.ErrorNotFound when the
// identity is unknown or not in a retryable state.
func (u *Uploader) Retry(ctx context.Context, identity string) error {
	rec, ok := u.catalog.Get(identity)
	if !ok {
		return common.ErrorNotFound
	}

	switch rec.UploadState {
	case models.UploadStateUploaded:
		return nil
	case models.UploadStateUploading:
		return common.ErrUploadInFlight
	case models.UploadStateNotUploaded, models.UploadStateFailed:
		return u.Upload(ctx, identity)
	default:
		return common.ErrorNotFound
	}
}

// AccessURL returns a valid signed URL for a remotely stored recording,
// re-minting through the store whenever the cached URL is missing or past
// its TTL.
func (u *Uploader) AccessURL(ctx context.Context, identity string) (string, error) {
	rec, ok := u.catalog.Get(identity)
	if !ok || rec.Remote == nil {
		return "", common.ErrorNotFound
	}

	if rec.Remote.URLValid(time.Now()) {
		return rec.Remote.URL, nil
	}

	url, expiresAt, err := u.store.MintAccessURL(ctx, identity, u.urlTTL)
	if err != nil {
		return "", fmt.Errorf("mint access url: %w", err)
	}

	if _, err := u.catalog.Update(ctx, identity, func(r *models.Recording) {
		if r.Remote == nil {
			return
		}
		r.Remote.URL = url
		r.Remote.ExpiresAt = expiresAt
	}); err != nil {
		return "", err
	}

	return url, nil
}

// Delete removes one recording everywhere: the remote object, the local file
// and the catalog entry, in that order so a partial failure never leaves an
// entry pointing at deleted bytes. Remote absence is not an error; an
// in-flight upload blocks deletion.
func (u *Uploader) Delete(ctx context.Context, identity string) error {
	if u.isInflight(identity) {
		return common.ErrUploadInFlight
	}

	rec, ok := u.catalog.Get(identity)
	if !ok {
		return common.ErrorNotFound
	}
	if rec.UploadState == models.UploadStateUploading {
		return common.ErrUploadInFlight
	}

	if rec.Remote != nil {
		if err := u.store.Remove(ctx, identity); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("remove remote object: %w", err)
		}
	}

	if rec.Local != nil {
		if err := filex.Remove(rec.Local.Path); err != nil {
			return err
		}
	}

	if err := u.catalog.Remove(ctx, identity); err != nil {
		return err
	}

	u.log.Info(ctx, "recording deleted", "identity", identity)
	return nil
}

// CleanupOrphans removes local-only entries that can no longer reach the
// remote store: entries whose file is gone, and entries absent from a fresh
// listing whose upload was never attempted or failed beyond the attempt
// budget. It is destructive and callers gate it behind explicit confirmation
// or a successful reconciliation pass.
//
// A local file whose identity appears in the fresh listing is never deleted.
func (u *Uploader) CleanupOrphans(ctx context.Context) (int, error) {
	remote, err := u.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list remote objects: %w", err)
	}

	remoteSet := make(map[string]struct{}, len(remote))
	for _, obj := range remote {
		remoteSet[obj.Identity] = struct{}{}
	}

	var merr *multierror.Error
	removed := 0

	for _, rec := range u.catalog.Snapshot() {
		if rec.SyncStatus() != models.SyncStatusLocalOnly {
			continue
		}
		if _, exists := remoteSet[rec.Identity]; exists {
			continue
		}
		if u.isInflight(rec.Identity) || rec.UploadState == models.UploadStateUploading {
			continue
		}

		fileExists, err := filex.Exists(rec.Local.Path)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", rec.Identity, err))
			continue
		}

		if fileExists {
			neverAttempted := rec.Attempts == 0
			exhausted := rec.UploadState == models.UploadStateFailed && rec.Attempts >= u.attemptBudget
			if !neverAttempted && !exhausted {
				continue
			}
			if err := filex.Remove(rec.Local.Path); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", rec.Identity, err))
				continue
			}
		}

		if err := u.catalog.Remove(ctx, rec.Identity); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", rec.Identity, err))
			continue
		}

		u.log.Info(ctx, "orphan removed", "identity", rec.Identity, "file_existed", fileExists)
		removed++
	}

	return removed, merr.ErrorOrNil()
}
