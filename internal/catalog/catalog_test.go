package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safevoice/internal/common"
	"safevoice/internal/models"
)

type memJournal struct {
	mu      sync.Mutex
	saved   map[string]*models.Recording
	deleted []string
}

func newMemJournal() *memJournal {
	return &memJournal{saved: make(map[string]*models.Recording)}
}

func (j *memJournal) Save(ctx context.Context, rec *models.Recording) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved[rec.Identity] = rec.Clone()
	return nil
}

func (j *memJournal) Delete(ctx context.Context, identity string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.saved, identity)
	j.deleted = append(j.deleted, identity)
	return nil
}

func localRec(identity string, capturedAt time.Time) *models.Recording {
	return &models.Recording{
		Identity:    identity,
		Local:       &models.LocalRef{Path: "/tmp/" + identity, SizeBytes: 1},
		CapturedAt:  capturedAt,
		UploadState: models.UploadStateNotUploaded,
	}
}

func TestCatalog_UpsertAndGet(t *testing.T) {
	j := newMemJournal()
	c := New(j)
	ctx := context.Background()

	rec := localRec("a.m4a", time.Unix(100, 0))
	require.NoError(t, c.Upsert(ctx, rec))

	got, ok := c.Get("a.m4a")
	require.True(t, ok)
	assert.Equal(t, rec.Identity, got.Identity)

	// The catalog holds its own copy.
	got.Local.Path = "/elsewhere"
	again, _ := c.Get("a.m4a")
	assert.Equal(t, "/tmp/a.m4a", again.Local.Path)

	assert.Contains(t, j.saved, "a.m4a")
}

func TestCatalog_UpsertRejectsRecordWithNeitherRef(t *testing.T) {
	c := New(nil)
	err := c.Upsert(context.Background(), &models.Recording{Identity: "a.m4a"})
	assert.Error(t, err)
}

func TestCatalog_UpdateUnknownIdentity(t *testing.T) {
	c := New(nil)
	_, err := c.Update(context.Background(), "missing.m4a", func(r *models.Recording) {})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCatalog_UpdateMutatesAndJournals(t *testing.T) {
	j := newMemJournal()
	c := New(j)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, localRec("a.m4a", time.Unix(100, 0))))

	got, err := c.Update(ctx, "a.m4a", func(r *models.Recording) {
		r.UploadState = models.UploadStateUploaded
		r.Remote = &models.RemoteRef{Key: "u1/a.m4a"}
	})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSynced, got.SyncStatus())
	assert.Equal(t, models.UploadStateUploaded, j.saved["a.m4a"].UploadState)
}

func TestCatalog_UpdateStrippingBothRefsPurgesEntry(t *testing.T) {
	j := newMemJournal()
	c := New(j)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, localRec("a.m4a", time.Unix(100, 0))))

	got, err := c.Update(ctx, "a.m4a", func(r *models.Recording) {
		r.Local = nil
	})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok := c.Get("a.m4a")
	assert.False(t, ok)
	assert.Equal(t, []string{"a.m4a"}, j.deleted)
}

func TestCatalog_RemoveIsIdempotent(t *testing.T) {
	c := New(newMemJournal())
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, localRec("a.m4a", time.Unix(100, 0))))
	require.NoError(t, c.Remove(ctx, "a.m4a"))
	require.NoError(t, c.Remove(ctx, "a.m4a"))
}

func TestCatalog_LoadSkipsInvalidEntries(t *testing.T) {
	c := New(nil)
	skipped := c.Load([]*models.Recording{
		localRec("a.m4a", time.Unix(100, 0)),
		{Identity: "ghost.m4a"}, // neither ref: purged
	})

	assert.Len(t, c.Snapshot(), 1)
	assert.Equal(t, []string{"ghost.m4a"}, skipped)
}

func TestCatalog_LoadResetsInterruptedUploads(t *testing.T) {
	c := New(nil)

	// The previous process was killed after journaling "uploading" but before
	// the upload finished. No upload survives a restart.
	interrupted := localRec("a.m4a", time.Unix(100, 0))
	interrupted.UploadState = models.UploadStateUploading
	interrupted.Attempts = 1

	c.Load([]*models.Recording{interrupted})

	got, ok := c.Get("a.m4a")
	require.True(t, ok)
	assert.Equal(t, models.UploadStateNotUploaded, got.UploadState)
	assert.Equal(t, 1, got.Attempts)
}

func TestCatalog_SnapshotNewestFirst(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, localRec("old.m4a", time.Unix(100, 0))))
	require.NoError(t, c.Upsert(ctx, localRec("new.m4a", time.Unix(200, 0))))

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "new.m4a", snap[0].Identity)

	// Snapshot is a copy: mutating it does not affect the catalog.
	snap[0].UploadState = models.UploadStateFailed
	got, _ := c.Get("new.m4a")
	assert.Equal(t, models.UploadStateNotUploaded, got.UploadState)
}

func TestCatalog_ConcurrentWritersOnDistinctIdentities(t *testing.T) {
	c := New(newMemJournal())
	ctx := context.Background()

	var wg sync.WaitGroup
	identities := []string{"a.m4a", "b.m4a", "c.m4a", "d.m4a"}
	for _, id := range identities {
		require.NoError(t, c.Upsert(ctx, localRec(id, time.Unix(100, 0))))
	}

	for i := 0; i < 50; i++ {
		for _, id := range identities {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := c.Update(ctx, id, func(r *models.Recording) {
					r.Attempts++
				})
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range identities {
		got, ok := c.Get(id)
		require.True(t, ok)
		assert.Equal(t, 50, got.Attempts)
	}
}
