// Package common defines shared constants and sentinel errors used across
// SafeVoice components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Catalog / lookup errors.
	ErrorNotFound = errors.New("not found")

	// Capture errors: fatal to the single operation, never retried.
	ErrPermissionDenied   = errors.New("microphone permission denied")
	ErrCaptureActive      = errors.New("capture session already active")
	ErrCaptureUnavailable = errors.New("capture produced no file")
	ErrFileMissing        = errors.New("local file missing")

	// Remote store errors.
	ErrTransientStore = errors.New("transient store error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrObjectExists   = errors.New("object already exists")

	// Precondition errors.
	ErrNoUserID       = errors.New("no user id")
	ErrUploadInFlight = errors.New("upload already in flight")
)
