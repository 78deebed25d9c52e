package config

import (
	"encoding/json"
	"os"

	"safevoice/internal/flagx"
	"safevoice/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals use
// timex.Duration so the file can say "5m" instead of nanoseconds.
type JsonConfig struct {
	RecordingsDir       string         `json:"recordings_dir"`
	DatabaseDSN         string         `json:"database_dsn"`
	SessionTokenPath    string         `json:"session_token_path"`
	CaptureDevice       string         `json:"capture_device"`
	CaptureInput        string         `json:"capture_input"`
	S3Region            string         `json:"s3_region"`
	S3Endpoint          string         `json:"s3_endpoint"`
	S3AccessKeyID       string         `json:"s3_access_key_id"`
	S3SecretAccessKey   string         `json:"s3_secret_access_key"`
	S3Bucket            string         `json:"s3_bucket"`
	ReconcileInterval   timex.Duration `json:"reconcile_interval"`
	AccessURLTTL        timex.Duration `json:"access_url_ttl"`
	UploadParallelism   int            `json:"upload_parallelism"`
	UploadAttemptBudget int            `json:"upload_attempt_budget"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent file path means no overlay; only non-zero JSON fields
// override. Read or unmarshal errors panic (caller decides whether to
// recover).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.RecordingsDir != "" {
		cfg.RecordingsDir = jc.RecordingsDir
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SessionTokenPath != "" {
		cfg.SessionTokenPath = jc.SessionTokenPath
	}
	if jc.CaptureDevice != "" {
		cfg.CaptureDevice = jc.CaptureDevice
	}
	if jc.CaptureInput != "" {
		cfg.CaptureInput = jc.CaptureInput
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3AccessKeyID != "" {
		cfg.S3AccessKeyID = jc.S3AccessKeyID
	}
	if jc.S3SecretAccessKey != "" {
		cfg.S3SecretAccessKey = jc.S3SecretAccessKey
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.ReconcileInterval.Duration != 0 {
		cfg.ReconcileInterval = jc.ReconcileInterval.Duration
	}
	if jc.AccessURLTTL.Duration != 0 {
		cfg.AccessURLTTL = jc.AccessURLTTL.Duration
	}
	if jc.UploadParallelism != 0 {
		cfg.UploadParallelism = jc.UploadParallelism
	}
	if jc.UploadAttemptBudget != 0 {
		cfg.UploadAttemptBudget = jc.UploadAttemptBudget
	}
}
