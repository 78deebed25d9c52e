package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"safevoice/internal/catalog"
	"safevoice/internal/common"
	"safevoice/internal/logging"
	"safevoice/internal/models"
	"safevoice/internal/store"
)

// fakeStore is an in-memory store.Client. Upload errors can be scripted
// per identity and are consumed in order.
type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	created     map[string]time.Time
	uploadErrs  map[string][]error
	uploadCalls int
	writes      []string
	listErr     error
	listCalls   int
	mintErr     error
	mintCalls   int
	removed     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:    make(map[string][]byte),
		created:    make(map[string]time.Time),
		uploadErrs: make(map[string][]error),
	}
}

func (f *fakeStore) seed(identity string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[identity] = body
	f.created[identity] = time.Unix(1000, 0)
}

func (f *fakeStore) scriptErr(identity string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErrs[identity] = append(f.uploadErrs[identity], errs...)
}

func (f *fakeStore) Upload(ctx context.Context, identity string, body []byte) (*models.RemoteRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls++

	if errs := f.uploadErrs[identity]; len(errs) > 0 {
		f.uploadErrs[identity] = errs[1:]
		return nil, errs[0]
	}

	ref := &models.RemoteRef{Key: "u1/" + identity}
	if _, exists := f.objects[identity]; exists {
		return ref, common.ErrObjectExists
	}

	f.objects[identity] = append([]byte(nil), body...)
	f.created[identity] = time.Unix(2000, 0)
	f.writes = append(f.writes, identity)
	return ref, nil
}

func (f *fakeStore) List(ctx context.Context) ([]store.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	identities := make([]string, 0, len(f.objects))
	for id := range f.objects {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	objects := make([]store.RemoteObject, 0, len(identities))
	for _, id := range identities {
		objects = append(objects, store.RemoteObject{
			Identity:  id,
			Key:       "u1/" + id,
			SizeBytes: int64(len(f.objects[id])),
			CreatedAt: f.created[id],
		})
	}
	return objects, nil
}

func (f *fakeStore) MintAccessURL(ctx context.Context, identity string, ttl time.Duration) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mintCalls++
	if f.mintErr != nil {
		return "", time.Time{}, f.mintErr
	}
	return "https://signed.example/u1/" + identity, time.Now().Add(ttl), nil
}

func (f *fakeStore) Remove(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.objects[identity]; !ok {
		return common.ErrorNotFound
	}
	delete(f.objects, identity)
	f.removed = append(f.removed, identity)
	return nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// writeLocalRecording creates a real backing file and the matching
// local-only catalog entry.
func writeLocalRecording(t *testing.T, cat *catalog.Catalog, dir, userID string, capturedAt time.Time) *models.Recording {
	t.Helper()

	identity := models.NewIdentity(userID, capturedAt)
	path := filepath.Join(dir, identity)
	if err := os.WriteFile(path, []byte("audio:"+identity), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := &models.Recording{
		Identity:    identity,
		Local:       &models.LocalRef{Path: path, SizeBytes: int64(len("audio:" + identity))},
		CapturedAt:  capturedAt,
		UploadState: models.UploadStateNotUploaded,
	}
	if err := cat.Upsert(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}
