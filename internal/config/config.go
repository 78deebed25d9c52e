// Package config handles runtime configuration: defaults, an optional JSON
// overlay, then command-line flags. Later sources take precedence.
package config

import "time"

// Config holds the engine's runtime settings.
//
// Fields:
//   - RecordingsDir: where captured audio files are materialized.
//   - DatabaseDSN: SQLite DSN of the catalog journal.
//   - SessionTokenPath: file the auth subsystem writes the session JWT to.
//   - CaptureDevice / CaptureInput: libavdevice capture source for ffmpeg.
//   - S3*: object-storage settings for the user's remote namespace.
//   - ReconcileInterval: period of the background reconciliation pass.
//   - AccessURLTTL: lifetime of minted signed URLs.
//   - UploadParallelism: max concurrent uploads in one reconciliation pass.
//   - UploadAttemptBudget: attempts before orphan cleanup may drop an entry.
type Config struct {
	RecordingsDir       string
	DatabaseDSN         string
	SessionTokenPath    string
	CaptureDevice       string
	CaptureInput        string
	S3Region            string
	S3Endpoint          string
	S3AccessKeyID       string
	S3SecretAccessKey   string
	S3Bucket            string
	ReconcileInterval   time.Duration
	AccessURLTTL        time.Duration
	UploadParallelism   int
	UploadAttemptBudget int
}

// LoadDefaults populates c with development defaults.
// NOTE: the S3 credentials are insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.RecordingsDir = "recordings"
	c.DatabaseDSN = "safevoice.db"
	c.SessionTokenPath = "session.jwt"
	c.CaptureDevice = "pulse"
	c.CaptureInput = "default"
	c.S3Region = "us-east-1"
	c.S3Endpoint = "http://127.0.0.1:9000"
	c.S3AccessKeyID = "admin"
	c.S3SecretAccessKey = "secretpassword"
	c.S3Bucket = "safevoice"
	c.ReconcileInterval = 5 * time.Minute
	c.AccessURLTTL = 15 * time.Minute
	c.UploadParallelism = 2
	c.UploadAttemptBudget = 5
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
