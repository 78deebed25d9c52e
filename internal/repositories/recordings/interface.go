// Package recordings persists the recording catalog to a local SQLite
// database, so the engine's view survives app restarts.
package recordings

import (
	"context"

	"safevoice/internal/models"
)

// Repository describes the persistence operations for Recording rows. It is
// the write-through journal behind the in-memory catalog.
type Repository interface {
	// Save inserts a new row or replaces an existing one by identity.
	Save(ctx context.Context, rec *models.Recording) error

	// Delete removes the row. Deleting an absent identity is not an error.
	Delete(ctx context.Context, identity string) error

	// GetAll returns every persisted recording, for seeding the catalog at
	// startup.
	GetAll(ctx context.Context) ([]*models.Recording, error)
}
