package recordings

import (
	"context"
	"fmt"
	"time"

	"safevoice/internal/dbx"
	"safevoice/internal/models"
)

// SQLiteRepository works over dbx.DBTX so the same code runs against a plain
// connection or inside a transaction.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *models.Recording) error {

	var localPath string
	var sizeBytes int64
	if rec.Local != nil {
		localPath = rec.Local.Path
		sizeBytes = rec.Local.SizeBytes
	}

	var remoteKey, remoteURL, urlExpiresAt string
	if rec.Remote != nil {
		remoteKey = rec.Remote.Key
		remoteURL = rec.Remote.URL
		if !rec.Remote.ExpiresAt.IsZero() {
			urlExpiresAt = rec.Remote.ExpiresAt.UTC().Format(time.RFC3339Nano)
		}
	}

	query := `
		INSERT INTO recordings
			(identity, local_path, size_bytes, duration_seconds, captured_at,
			 upload_state, upload_error, attempts, remote_key, remote_url, url_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			local_path = excluded.local_path,
			size_bytes = excluded.size_bytes,
			duration_seconds = excluded.duration_seconds,
			captured_at = excluded.captured_at,
			upload_state = excluded.upload_state,
			upload_error = excluded.upload_error,
			attempts = excluded.attempts,
			remote_key = excluded.remote_key,
			remote_url = excluded.remote_url,
			url_expires_at = excluded.url_expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.Identity, localPath, sizeBytes, rec.DurationSeconds,
		rec.CapturedAt.UTC().Format(time.RFC3339Nano),
		string(rec.UploadState), rec.UploadError, rec.Attempts,
		remoteKey, remoteURL, urlExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, identity string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.Recording, error) {

	query := `
		SELECT identity, local_path, size_bytes, duration_seconds, captured_at,
		       upload_state, upload_error, attempts, remote_key, remote_url, url_expires_at
		FROM recordings
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select recordings: %w", err)
	}
	defer rows.Close()

	var result []*models.Recording

	for rows.Next() {
		var (
			rec          models.Recording
			localPath    string
			sizeBytes    int64
			capturedAt   string
			uploadState  string
			remoteKey    string
			remoteURL    string
			urlExpiresAt string
		)
		err := rows.Scan(&rec.Identity, &localPath, &sizeBytes, &rec.DurationSeconds,
			&capturedAt, &uploadState, &rec.UploadError, &rec.Attempts,
			&remoteKey, &remoteURL, &urlExpiresAt)
		if err != nil {
			return nil, err
		}

		rec.UploadState = models.UploadState(uploadState)

		rec.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("recording %s: bad captured_at: %w", rec.Identity, err)
		}

		if localPath != "" {
			rec.Local = &models.LocalRef{Path: localPath, SizeBytes: sizeBytes}
		}
		if remoteKey != "" {
			ref := &models.RemoteRef{Key: remoteKey, URL: remoteURL}
			if urlExpiresAt != "" {
				ref.ExpiresAt, err = time.Parse(time.RFC3339Nano, urlExpiresAt)
				if err != nil {
					return nil, fmt.Errorf("recording %s: bad url_expires_at: %w", rec.Identity, err)
				}
			}
			rec.Remote = ref
		}

		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
