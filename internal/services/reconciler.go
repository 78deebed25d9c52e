package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"safevoice/internal/catalog"
	"safevoice/internal/common"
	"safevoice/internal/filex"
	"safevoice/internal/logging"
	"safevoice/internal/models"
	"safevoice/internal/store"
)

// Summary reports the outcome of one reconciliation pass. Per-identity
// failures are counted, never raised: one bad entry must not abort the rest.
type Summary struct {
	Uploaded      int // pushed to the remote store in this pass
	AlreadySynced int // reclassified synced without a re-upload
	Discovered    int // cloud-only entries merged into the catalog
	Failed        int // still failing after this pass
	Lost          int // local-only entries whose backing file vanished
}

func (s *Summary) String() string {
	return fmt.Sprintf("uploaded=%d already_synced=%d discovered=%d failed=%d lost=%d",
		s.Uploaded, s.AlreadySynced, s.Discovered, s.Failed, s.Lost)
}

// record folds one upload outcome into the summary. An in-flight collision is
// not counted: the competing upload publishes its own outcome. A vanished
// file means the uploader already dropped the entry, which is data loss, not
// a failure.
func (s *Summary) record(err error) {
	switch {
	case err == nil:
		s.Uploaded++
	case errors.Is(err, common.ErrUploadInFlight):
	case errors.Is(err, common.ErrFileMissing):
		s.Lost++
	default:
		s.Failed++
	}
}

// Reconciler computes the diff between the catalog's local-only view and the
// remote listing, then converges both sides: true local-only entries are
// uploaded, stale "not uploaded" flags are corrected without re-uploading,
// and remote-only objects are merged in as cloud-only entries.
type Reconciler struct {
	catalog     *catalog.Catalog
	store       store.Client
	uploader    *Uploader
	log         logging.Logger
	urlTTL      time.Duration
	parallelism int

	mu sync.Mutex // one pass at a time
}

func NewReconciler(cat *catalog.Catalog, st store.Client, uploader *Uploader, log logging.Logger, urlTTL time.Duration, parallelism int) *Reconciler {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Reconciler{
		catalog:     cat,
		store:       st,
		uploader:    uploader,
		log:         log,
		urlTTL:      urlTTL,
		parallelism: parallelism,
	}
}

// Reconcile runs one pass. It returns an error only when the remote listing
// itself is unavailable; every per-identity outcome lands in the Summary.
// Passes serialize against each other but run safely alongside new captures
// and manual retries: all catalog writes are identity-keyed and uploads are
// deduplicated by the uploader's in-flight guard.
func (r *Reconciler) Reconcile(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.catalog.Snapshot()

	remote, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote objects: %w", err)
	}

	remoteByID := make(map[string]store.RemoteObject, len(remote))
	for _, obj := range remote {
		remoteByID[obj.Identity] = obj
	}

	known := make(map[string]struct{}, len(snapshot))
	for _, rec := range snapshot {
		known[rec.Identity] = struct{}{}
	}

	summary := &Summary{}

	// Classify the local-only side.
	var toUpload []*models.Recording
	for _, rec := range snapshot {
		if rec.SyncStatus() != models.SyncStatusLocalOnly {
			continue
		}
		// An in-flight upload publishes its own terminal state; reclassifying
		// it here could downgrade it.
		if rec.UploadState == models.UploadStateUploading {
			continue
		}

		if obj, found := remoteByID[rec.Identity]; found {
			// The earlier upload succeeded but the local state write was
			// lost. Remote presence wins over the stale flag: reclassify
			// without re-uploading.
			if _, err := r.catalog.Update(ctx, rec.Identity, func(rr *models.Recording) {
				if rr.UploadState == models.UploadStateUploading {
					return
				}
				rr.UploadState = models.UploadStateUploaded
				rr.UploadError = ""
				if rr.Remote == nil {
					rr.Remote = &models.RemoteRef{Key: obj.Key}
				}
			}); err != nil {
				r.log.Error(ctx, "reclassify failed", "identity", rec.Identity, "error", err)
				summary.Failed++
				continue
			}
			summary.AlreadySynced++
			continue
		}

		toUpload = append(toUpload, rec)
	}

	r.uploadAll(ctx, toUpload, summary)

	// Merge remote-only objects in as cloud-only entries.
	for _, obj := range remote {
		if _, ok := known[obj.Identity]; ok {
			continue
		}
		if err := r.discover(ctx, obj); err != nil {
			r.log.Error(ctx, "merging cloud-only object failed", "identity", obj.Identity, "error", err)
			summary.Failed++
			continue
		}
		summary.Discovered++
	}

	r.log.Info(ctx, "reconciliation finished", "summary", summary.String())
	return summary, nil
}

// uploadAll pushes the true local-only entries with bounded parallelism.
// Entries whose backing file vanished are dropped as lost recordings; a
// failure for one identity never aborts the others. Every summary write,
// including the dispatch loop's, happens under mu: upload goroutines run
// concurrently with the loop that launches them.
func (r *Reconciler) uploadAll(ctx context.Context, toUpload []*models.Recording, summary *Summary) {
	sem := make(chan struct{}, r.parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, rec := range toUpload {
		exists, err := filex.Exists(rec.Local.Path)
		if err != nil {
			mu.Lock()
			summary.Failed++
			mu.Unlock()
			continue
		}
		if !exists {
			// The recording can never be uploaded: drop it rather than fail.
			r.log.Error(ctx, "local file vanished, dropping recording", "identity", rec.Identity, "path", rec.Local.Path)
			if _, err := r.catalog.Update(ctx, rec.Identity, func(rr *models.Recording) { rr.Local = nil }); err != nil {
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				continue
			}
			mu.Lock()
			summary.Lost++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(identity string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.uploader.Upload(ctx, identity)

			mu.Lock()
			summary.record(err)
			mu.Unlock()
		}(rec.Identity)
	}

	wg.Wait()
}

// discover synthesizes a cloud-only catalog entry for a remote object with
// no local counterpart, minting an access URL so the recording is playable
// immediately.
func (r *Reconciler) discover(ctx context.Context, obj store.RemoteObject) error {
	capturedAt := obj.CreatedAt
	if _, parsed, err := models.ParseIdentity(obj.Identity); err == nil {
		capturedAt = parsed
	}

	ref := &models.RemoteRef{Key: obj.Key}
	if url, expiresAt, err := r.store.MintAccessURL(ctx, obj.Identity, r.urlTTL); err == nil {
		ref.URL = url
		ref.ExpiresAt = expiresAt
	} else {
		// The entry is still merged; the URL is re-minted on first access.
		r.log.Warn(ctx, "minting access url failed", "identity", obj.Identity, "error", err)
	}

	return r.catalog.Upsert(ctx, &models.Recording{
		Identity:    obj.Identity,
		Remote:      ref,
		CapturedAt:  capturedAt,
		UploadState: models.UploadStateUploaded,
	})
}
