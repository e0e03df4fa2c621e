package main

import (
	"context"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/waifuvault/waifuvault-go/internal/app"
	"github.com/waifuvault/waifuvault-go/internal/download"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

func newBucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage buckets",
		Long: heredoc.Doc(`
			A bucket groups uploaded files under one token. Anyone holding the
			token can list and delete its files.
		`),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a new bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			bucket, err := perform(ctx, container, false, func(ctx context.Context) (*waifuvault.BucketEntry, error) {
				return container.Client.CreateBucket(ctx)
			})
			if err != nil {
				return err
			}
			return printBucket(cmd.OutOrStdout(), bucket)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <token>",
		Short: "List the files and albums of a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			bucket, err := call(ctx, container, func(ctx context.Context) (*waifuvault.BucketEntry, error) {
				return container.Client.GetBucket(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return printBucket(cmd.OutOrStdout(), bucket)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a bucket with all its files and albums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			ok, err := perform(ctx, container, false, func(ctx context.Context) (bool, error) {
				return container.Client.DeleteBucket(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return printDeleted(cmd.OutOrStdout(), args[0], ok)
		},
	})

	cmd.AddCommand(newPullCmd("Download every file of a bucket", (*download.Manager).PullBucket))
	return cmd
}

// newPullCmd builds the "pull" subcommand shared by buckets and albums.
func newPullCmd(short string, pull func(*download.Manager, context.Context, string) (*download.Summary, error)) *cobra.Command {
	var (
		output    string
		workers   int
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "pull <token>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			password, err := passwordFlag(cmd, "password", "ask-password", "Password: ")
			if err != nil {
				return err
			}

			manager := newManager(container, cmd, output, workers, overwrite, password)
			summary, err := pull(manager, ctx, args[0])
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Directory to write files to (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel downloads (default from config)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace files that already exist")
	cmd.Flags().StringP("password", "P", "", "Password sent for protected files")
	cmd.Flags().Bool("ask-password", false, "Prompt for the password")
	cmd.MarkFlagsMutuallyExclusive("password", "ask-password")
	return cmd
}

func newManager(container *app.Container, cmd *cobra.Command, output string, workers int, overwrite bool, password string) *download.Manager {
	cfg := container.Config
	if !cmd.Flags().Changed("output") {
		output = cfg.DownloadDirectory
	}
	if !cmd.Flags().Changed("workers") {
		workers = cfg.DownloadWorkers
	}

	return download.NewManager(container.Client, container.Retry, container.Logger,
		download.WithDirectory(output),
		download.WithWorkers(workers),
		download.WithOverwrite(overwrite),
		download.WithPassword(password),
	)
}
