// Package models defines the recording entity and its storage-state
// invariants.
package models

import (
	"fmt"
	"strings"
	"time"

	"safevoice/internal/common"
)

// UploadState tracks the progress of pushing a recording's bytes to the
// remote store. It is a single tagged value so contradictory combinations
// ("uploading and uploaded") are unrepresentable.
type UploadState string

const (
	UploadStateNotUploaded UploadState = "not_uploaded"
	UploadStateUploading   UploadState = "uploading"
	UploadStateUploaded    UploadState = "uploaded"
	UploadStateFailed      UploadState = "upload_failed"
)

// SyncStatus is the derived local/remote consistency classification. It is
// never stored; it is always recomputed from the presence of the two refs
// and the upload state.
type SyncStatus string

const (
	SyncStatusLocalOnly SyncStatus = "local_only"
	SyncStatusCloudOnly SyncStatus = "cloud_only"
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusConflict  SyncStatus = "conflict"

	// SyncStatusInvalid marks an entry with neither ref; the catalog purges
	// such entries.
	SyncStatusInvalid SyncStatus = "invalid"
)

// LocalRef is an owning reference to recording bytes on the device.
type LocalRef struct {
	Path      string
	SizeBytes int64
}

// RemoteRef is a non-owning reference to the object in the remote store.
// URL is a time-limited signed URL and may be empty until first minted.
type RemoteRef struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// URLValid reports whether the cached signed URL can still be handed out.
func (r *RemoteRef) URLValid(now time.Time) bool {
	return r.URL != "" && now.Before(r.ExpiresAt)
}

// Recording is one captured audio artifact and everything known about its
// storage state. Identity is immutable once assigned and is the only field
// used to match a local representation against a remote one.
type Recording struct {
	Identity        string
	Local           *LocalRef
	Remote          *RemoteRef
	DurationSeconds int
	CapturedAt      time.Time
	UploadState     UploadState
	UploadError     string
	Attempts        int
}

// SyncStatus derives the consistency classification from the two refs and
// the upload state, per the catalog invariants.
func (r *Recording) SyncStatus() SyncStatus {
	switch {
	case r.Local != nil && r.Remote != nil:
		if r.UploadState == UploadStateUploaded {
			return SyncStatusSynced
		}
		return SyncStatusConflict
	case r.Local != nil:
		return SyncStatusLocalOnly
	case r.Remote != nil:
		return SyncStatusCloudOnly
	default:
		return SyncStatusInvalid
	}
}

// Clone returns a deep copy, so catalog snapshots cannot be mutated behind
// the catalog's back.
func (r *Recording) Clone() *Recording {
	c := *r
	if r.Local != nil {
		l := *r.Local
		c.Local = &l
	}
	if r.Remote != nil {
		rr := *r.Remote
		c.Remote = &rr
	}
	return &c
}

// stampLayout is the capture timestamp in UTC milliseconds. The trailing Z
// and the dash-for-colon substitution are applied manually so the result is
// a legal object key.
const stampLayout = "2006-01-02T15:04:05.000"

// NewIdentity builds the stable object name for a capture:
// <userId>_emergency_<ISO8601-with-dashes>.m4a. The convention must stay
// stable across sessions; it is what matches local recordings to remote
// objects.
func NewIdentity(userID string, capturedAt time.Time) string {
	stamp := capturedAt.UTC().Format(stampLayout) + "Z"
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return userID + common.RecordingMarker + stamp + common.RecordingSuffix
}

// ParseIdentity splits an identity back into the user id and the capture
// time. Used to derive CapturedAt for recordings first observed remotely.
func ParseIdentity(identity string) (string, time.Time, error) {
	if !strings.HasSuffix(identity, common.RecordingSuffix) {
		return "", time.Time{}, fmt.Errorf("identity %q: missing %s suffix", identity, common.RecordingSuffix)
	}
	trimmed := strings.TrimSuffix(identity, common.RecordingSuffix)

	i := strings.LastIndex(trimmed, common.RecordingMarker)
	if i < 1 {
		return "", time.Time{}, fmt.Errorf("identity %q: missing marker", identity)
	}
	userID := trimmed[:i]
	stamp := strings.TrimSuffix(trimmed[i+len(common.RecordingMarker):], "Z")

	date, clock, ok := strings.Cut(stamp, "T")
	if !ok {
		return "", time.Time{}, fmt.Errorf("identity %q: malformed timestamp", identity)
	}
	parts := strings.Split(clock, "-")
	if len(parts) != 4 {
		return "", time.Time{}, fmt.Errorf("identity %q: malformed timestamp", identity)
	}

	capturedAt, err := time.Parse(stampLayout, fmt.Sprintf("%sT%s:%s:%s.%s", date, parts[0], parts[1], parts[2], parts[3]))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity %q: %w", identity, err)
	}

	return userID, capturedAt, nil
}
