// Package common contains shared constants and sentinel errors used across
// SafeVoice components.
package common

// RecordingSuffix is the fixed suffix of every recording identity. The full
// naming convention is <userId>_emergency_<timestamp>.m4a and must be kept
// stable: it is the only key matching a local recording to its remote object.
const RecordingSuffix = ".m4a"

// RecordingMarker separates the user id from the capture timestamp in an
// identity.
const RecordingMarker = "_emergency_"
