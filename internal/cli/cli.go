// Package cli defines the command tree of the safevoice binary.
package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"safevoice/internal/app"
	"safevoice/internal/config"
)

// commandContext lazily constructs the application so commands that never
// touch it (help, completion) do not open the journal or hit the network.
type commandContext struct {
	app *app.App
}

func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// NewRootCommand assembles the safevoice command tree.
//
// Engine settings come from the config package, which parses its own flags
// (-c/-config, -a, -b, -d, -t, -i) straight from os.Args. The same flags are
// registered here so cobra accepts them instead of rejecting the invocation.
func NewRootCommand() *cobra.Command {
	cctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "safevoice",
		Short:         "Emergency audio evidence engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	registerConfigFlags(rootCmd)

	rootCmd.AddCommand(newRecordCommand(cctx))
	rootCmd.AddCommand(newSyncCommand(cctx))
	rootCmd.AddCommand(newListCommand(cctx))
	rootCmd.AddCommand(newRetryCommand(cctx))
	rootCmd.AddCommand(newDeleteCommand(cctx))
	rootCmd.AddCommand(newCleanupCommand(cctx))
	rootCmd.AddCommand(newURLCommand(cctx))

	return rootCmd
}

// registerConfigFlags mirrors the flags the config package parses itself.
// The values bound here are discarded; config.LoadConfig is the authority.
func registerConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "path to JSON config file")
	cmd.PersistentFlags().StringP("address", "a", "", "address of the S3-compatible endpoint")
	cmd.PersistentFlags().StringP("bucket", "b", "", "S3 bucket name")
	cmd.PersistentFlags().StringP("directory", "d", "", "recordings directory")
	cmd.PersistentFlags().StringP("token", "t", "", "session token file")
	cmd.PersistentFlags().StringP("interval", "i", "", "reconcile interval (in seconds)")
}

func newRecordCommand(cctx *commandContext) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture audio until interrupted, then submit it for upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := app.NotifyContext(cmd.Context())
			defer stop()

			session, err := a.Recorder().Start(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "recording... press Ctrl-C to stop")

			if duration > 0 {
				waitCtx, cancel := context.WithTimeout(ctx, duration)
				<-waitCtx.Done()
				cancel()
			} else {
				<-ctx.Done()
			}

			// Submission must survive the interrupt that ended the take.
			rec, err := a.Recorder().StopAndSubmit(context.WithoutCancel(ctx), session)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "captured %s (%ds, %d bytes), upload queued\n",
				rec.Identity, rec.DurationSeconds, rec.Local.SizeBytes)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop automatically after this long (0 = until interrupted)")
	return cmd
}

func newSyncCommand(cctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local catalog against remote storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := app.NotifyContext(cmd.Context())
			defer stop()

			summary, err := a.Reconciler().Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)

			if watch {
				a.StartReconcileLoop(ctx)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep reconciling on the configured interval")
	return cmd
}

func newListCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known recordings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tSTATUS\tSIZE\tDURATION\tATTEMPTS")
			for _, rec := range a.Catalog().Snapshot() {
				var size int64
				if rec.Local != nil {
					size = rec.Local.SizeBytes
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%ds\t%d\n",
					rec.Identity, rec.SyncStatus(), size, rec.DurationSeconds, rec.Attempts)
			}
			return w.Flush()
		},
	}
}

func newRetryCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <identity>",
		Short: "Retry the upload of a failed or pending recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Uploader().Retry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s uploaded\n", args[0])
			return nil
		},
	}
}

func newDeleteCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <identity>",
		Short: "Delete a recording locally and remotely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Uploader().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}

func newCleanupCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned local files that will never upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := a.Uploader().CleanupOrphans(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned recording(s)\n", removed)
			return nil
		},
	}
}

func newURLCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "url <identity>",
		Short: "Print a time-limited access URL for an uploaded recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			url, err := a.Uploader().AccessURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
