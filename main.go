package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"satsync/internal/checkpoint"
	"satsync/internal/config"
	"satsync/internal/gesdisc"
	"satsync/internal/layout"
	"satsync/internal/logger"
	"satsync/internal/sources"
	"satsync/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment and applies the log settings.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "satsync",
		Short:         "Keep local copies of satellite archives in sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newPeriodCmd(),
		newFetchURLsCmd(),
		newCheckpointsCmd(),
		newMirrorCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [source...]",
		Short: "Run the sync loops until interrupted",
		Long: "Run the sync loops for the named sources (himawari, imerg, modis) until " +
			"SIGINT or SIGTERM. With no names, every source with credentials is started.",
		ValidArgs: sources.Names,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			app, err := NewApp(ctx, cfg, args)
			if err != nil {
				return err
			}
			defer app.Close()

			names := make([]string, 0, len(app.Syncers))
			for _, s := range app.Syncers {
				names = append(names, s.Name())
			}
			logger.Info("Starting satsync", map[string]interface{}{
				"version":     config.GetVersion(),
				"environment": cfg.Environment,
				"sources":     names,
				"status_port": cfg.StatusPort,
			})

			err = app.Run(ctx)
			logger.Info("Stopped")
			return err
		},
	}
}

func newPeriodCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "period <source>",
		Short: "Sync a single period of one source and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := layout.ParseStart(period)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			// A one-off sync must not move the stored cursor.
			cfg.CheckpointDB = ""

			app, err := NewApp(ctx, cfg, args)
			if err != nil {
				return err
			}
			defer app.Close()

			s, _ := app.Syncer(args[0])
			res, err := s.SyncPeriod(ctx, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: found=%t matched=%d known=%d downloaded=%d failed=%d\n",
				args[0], res.RemoteDir, res.Found, res.Matched, res.Known, res.Downloaded, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period to sync, YYYY-MM-DD or YYYY-MM-DDTHH (UTC)")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newFetchURLsCmd() *cobra.Command {
	var listFile, outDir string
	cmd := &cobra.Command{
		Use:   "fetch-urls",
		Short: "Download a GES DISC URL list with Earthdata Login",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := cfg.GESDISC.Validate(); err != nil {
				return err
			}

			urls, err := gesdisc.ReadURLList(listFile)
			if err != nil {
				return err
			}
			d, err := gesdisc.New(gesdisc.Options{
				User:       cfg.GESDISC.User,
				Password:   cfg.GESDISC.Password,
				URSHost:    cfg.GESDISC.URSHost,
				CookieFile: cfg.GESDISC.CookieFile,
				Attempts:   cfg.GESDISC.Attempts,
				RetryDelay: cfg.GESDISC.RetryDelay,
				Timeout:    cfg.GESDISC.Timeout,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := d.Close(); err != nil {
					logger.Warn("Could not save cookies", map[string]interface{}{"error": err.Error()})
				}
			}()

			summary, err := d.DownloadAll(ctx, urls, outDir)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d downloaded, %d failed\n", summary.Downloaded, summary.Total, summary.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&listFile, "list", "", "file with one URL per line")
	cmd.Flags().StringVar(&outDir, "out", ".", "target directory")
	_ = cmd.MarkFlagRequired("list")
	return cmd
}

func newCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Show the stored sync cursors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCheckpoints(cmd.Context(), func(store *checkpoint.Store) error {
				cps, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				return printCheckpoints(cmd.OutOrStdout(), cps)
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <source>",
		Short: "Forget a source's cursor so it restarts from its configured start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCheckpoints(cmd.Context(), func(store *checkpoint.Store) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint for %s removed\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withCheckpoints(ctx context.Context, fn func(*checkpoint.Store) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.CheckpointDB == "" {
		return fmt.Errorf("CHECKPOINT_DB is empty, checkpoints are disabled")
	}
	store, err := checkpoint.Open(ctx, cfg.CheckpointDB)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printCheckpoints(w io.Writer, cps []checkpoint.Checkpoint) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tCURSOR\tMODE\tLAST FOUND\tUPDATED")
	for _, cp := range cps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			cp.Source, formatTime(cp.Cursor), cp.Mode, formatTime(cp.LastFound), formatTime(cp.UpdatedAt))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func newMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect the configured mirror",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [prefix]",
		Short: "List mirrored objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := cfg.Mirror.Validate(); err != nil {
				return err
			}
			client, err := storage.NewStorageClient(ctx, &cfg.Mirror)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("no mirror configured (MIRROR_MODE=%s)", cfg.Mirror.Mode)
			}
			defer client.Close()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			objects, err := client.List(ctx, prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, o := range objects {
				fmt.Fprintln(out, o)
			}
			fmt.Fprintf(out, "%d objects in %s\n", len(objects), client.Describe())
			return nil
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetVersion())
		},
	}
}
