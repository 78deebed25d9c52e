// Package catalog holds the authoritative in-memory collection of known
// recordings. Every mutation is keyed by identity: there is no positional
// access, so concurrent writers touching different identities never
// interfere.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"safevoice/internal/common"
	"safevoice/internal/models"
)

// Journal persists catalog mutations so the catalog can be rebuilt after a
// restart. Implementations must be identity-keyed and idempotent.
type Journal interface {
	Save(ctx context.Context, rec *models.Recording) error
	Delete(ctx context.Context, identity string) error
}

// Catalog is safe for concurrent use. Mutations holding the lock also write
// through to the journal, so journal order matches catalog order.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*models.Recording
	journal Journal
}

// New returns an empty catalog. journal may be nil (tests, ephemeral runs).
func New(journal Journal) *Catalog {
	return &Catalog{
		entries: make(map[string]*models.Recording),
		journal: journal,
	}
}

// Load seeds the catalog, typically from the journal at startup. Entries
// with neither ref are invalid and are skipped; their identities are
// returned so the caller can purge them from the journal.
//
// An entry persisted as "uploading" is an attempt the previous process never
// finished: no upload survives a restart, and the in-process in-flight guard
// is the only live marker. Such entries are reset to "not uploaded" so
// retries, deletion and the next reconciliation pass can reach them again.
func (c *Catalog) Load(recs []*models.Recording) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var skipped []string
	for _, rec := range recs {
		if rec.SyncStatus() == models.SyncStatusInvalid {
			skipped = append(skipped, rec.Identity)
			continue
		}
		entry := rec.Clone()
		if entry.UploadState == models.UploadStateUploading {
			entry.UploadState = models.UploadStateNotUploaded
		}
		c.entries[rec.Identity] = entry
	}
	return skipped
}

// Upsert inserts or replaces the entry for rec.Identity. Entries with
// neither ref are rejected.
func (c *Catalog) Upsert(ctx context.Context, rec *models.Recording) error {
	if rec.Identity == "" {
		return fmt.Errorf("upsert: empty identity")
	}
	if rec.SyncStatus() == models.SyncStatusInvalid {
		return fmt.Errorf("upsert %s: recording has neither local nor remote ref", rec.Identity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[rec.Identity] = rec.Clone()
	if c.journal != nil {
		if err := c.journal.Save(ctx, rec); err != nil {
			return fmt.Errorf("journal save %s: %w", rec.Identity, err)
		}
	}
	return nil
}

// Remove drops the entry. Removing an absent identity is not an error.
func (c *Catalog) Remove(ctx context.Context, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, identity)
	if c.journal != nil {
		if err := c.journal.Delete(ctx, identity); err != nil {
			return fmt.Errorf("journal delete %s: %w", identity, err)
		}
	}
	return nil
}

// Update applies mutate to the entry under the catalog lock and returns a
// clone of the result. If the mutation strips both refs the entry is purged.
// Returns common.ErrorNotFound for an unknown identity.
func (c *Catalog) Update(ctx context.Context, identity string, mutate func(*models.Recording)) (*models.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[identity]
	if !ok {
		return nil, common.ErrorNotFound
	}

	mutate(rec)

	if rec.SyncStatus() == models.SyncStatusInvalid {
		delete(c.entries, identity)
		if c.journal != nil {
			if err := c.journal.Delete(ctx, identity); err != nil {
				return nil, fmt.Errorf("journal delete %s: %w", identity, err)
			}
		}
		return nil, nil
	}

	if c.journal != nil {
		if err := c.journal.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("journal save %s: %w", identity, err)
		}
	}
	return rec.Clone(), nil
}

// Get returns a clone of the entry, if present.
func (c *Catalog) Get(identity string) (*models.Recording, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.entries[identity]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Snapshot returns a consistent copy of all entries, newest capture first.
func (c *Catalog) Snapshot() []*models.Recording {
	c.mu.RLock()
	defer c.mu.RUnlock()

	recs := make([]*models.Recording, 0, len(c.entries))
	for _, rec := range c.entries {
		recs = append(recs, rec.Clone())
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CapturedAt.Equal(recs[j].CapturedAt) {
			return recs[i].Identity < recs[j].Identity
		}
		return recs[i].CapturedAt.After(recs[j].CapturedAt)
	})
	return recs
}
