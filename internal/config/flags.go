package config

import (
	"flag"
	"os"
	"time"

	"safevoice/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   S3 endpoint address
//	-b string   S3 bucket
//	-d string   recordings directory
//	-t string   session token file
//	-i int      reconcile interval in seconds
//
// Only the flags handled here are parsed (via flagx.FilterArgs), so the CLI
// layer can define its own flags without interference.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-d", "-t", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.S3Endpoint, "a", cfg.S3Endpoint, "address of the S3-compatible endpoint")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket name")
	fs.StringVar(&cfg.RecordingsDir, "d", cfg.RecordingsDir, "recordings directory")
	fs.StringVar(&cfg.SessionTokenPath, "t", cfg.SessionTokenPath, "session token file")
	reconcileInterval := fs.Int("i", int(cfg.ReconcileInterval.Seconds()), "reconcile interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.ReconcileInterval = time.Duration(*reconcileInterval) * time.Second
}
