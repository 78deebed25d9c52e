// Package store implements the remote object-store client. All network I/O
// against the user's namespace (<userId>/) goes through here.
package store

import (
	"context"
	"time"

	"safevoice/internal/models"
)

// RemoteObject describes one object found in the remote namespace.
type RemoteObject struct {
	Identity  string
	Key       string // full storage key, including the user prefix
	SizeBytes int64
	CreatedAt time.Time
}

// Client is the engine's view of the remote store.
//
// Upload is not an upsert: re-uploading an existing identity fails with
// common.ErrObjectExists. Identities are timestamp-derived, so a collision
// indicates either a retry that already succeeded (callers treat the error
// as success) or a bug.
type Client interface {
	// Upload stores the bytes under the identity and returns the remote ref.
	// On common.ErrObjectExists the ref is still returned, so callers that
	// treat the collision as an already-completed upload can record it.
	Upload(ctx context.Context, identity string, body []byte) (*models.RemoteRef, error)

	// List returns one descriptor per object in the namespace. It exhausts
	// all pages before returning; the result is never partial on success.
	List(ctx context.Context) ([]RemoteObject, error)

	// MintAccessURL returns a signed GET URL valid for ttl, plus its expiry.
	MintAccessURL(ctx context.Context, identity string, ttl time.Duration) (string, time.Time, error)

	// Remove deletes the object. A missing object yields common.ErrorNotFound,
	// which callers treat as success.
	Remove(ctx context.Context, identity string) error
}
