package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/waifuvault/waifuvault-go/internal/download"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

func newAlbumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "album",
		Short: "Manage albums",
		Long: heredoc.Doc(`
			An album is a named, optionally public, collection of files of one
			bucket. A file belongs to at most one album.
		`),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <bucket-token> <name>",
		Short: "Create an album in a bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return albumCall(cmd, false, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.AlbumEntry, error) {
				return client.CreateAlbum(ctx, args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <album-token>",
		Short: "Show an album and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return albumCall(cmd, true, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.AlbumEntry, error) {
				return client.GetAlbum(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "associate <album-token> <file-token>...",
		Short: "Add files of the album's bucket to the album",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return albumCall(cmd, false, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.AlbumEntry, error) {
				return client.AssociateFiles(ctx, args[0], args[1:])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disassociate <album-token> <file-token>...",
		Short: "Remove files from an album, keeping the files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return albumCall(cmd, false, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.AlbumEntry, error) {
				return client.DisassociateFiles(ctx, args[0], args[1:])
			})
		},
	})

	var deleteFiles bool
	deleteCmd := &cobra.Command{
		Use:   "delete <album-token>",
		Short: "Delete an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return messageCall(cmd, false, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.GenericMessage, error) {
				return client.DeleteAlbum(ctx, args[0], deleteFiles)
			})
		},
	}
	deleteCmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also delete the files of the album")
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "share <album-token>",
		Short: "Make an album public and print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return messageCall(cmd, true, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.GenericMessage, error) {
				return client.ShareAlbum(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <album-token>",
		Short: "Withdraw the public URL of an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return messageCall(cmd, false, func(ctx context.Context, client waifuvault.ClientAPI) (*waifuvault.GenericMessage, error) {
				return client.RevokeAlbum(ctx, args[0])
			})
		},
	})

	cmd.AddCommand(newAlbumDownloadCmd())
	cmd.AddCommand(newPullCmd("Download every file of an album", (*download.Manager).PullAlbum))
	return cmd
}

func newAlbumDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <album-token> [file-id]...",
		Short: "Download an album as a zip archive",
		Long: heredoc.Doc(`
			Downloads an album as one zip archive. File ids are positions in the
			album's file list, starting at 0; without ids every file is included.
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid file id %q", arg)
				}
				ids = append(ids, id)
			}

			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			archive, err := call(ctx, container, func(ctx context.Context) ([]byte, error) {
				return container.Client.DownloadAlbum(ctx, args[0], ids)
			})
			if err != nil {
				return err
			}

			if output == "" {
				output = args[0] + ".zip"
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(archive)
				return err
			}
			if err := os.WriteFile(output, archive, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			container.Logger.Infof("wrote %d bytes to %s", len(archive), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path, - for stdout (default <album-token>.zip)")
	return cmd
}

func albumCall(cmd *cobra.Command, idempotent bool, op func(context.Context, waifuvault.ClientAPI) (*waifuvault.AlbumEntry, error)) error {
	container, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	album, err := perform(ctx, container, idempotent, func(ctx context.Context) (*waifuvault.AlbumEntry, error) {
		return op(ctx, container.Client)
	})
	if err != nil {
		return err
	}
	return printAlbum(cmd.OutOrStdout(), album)
}

func messageCall(cmd *cobra.Command, idempotent bool, op func(context.Context, waifuvault.ClientAPI) (*waifuvault.GenericMessage, error)) error {
	container, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	msg, err := perform(ctx, container, idempotent, func(ctx context.Context) (*waifuvault.GenericMessage, error) {
		return op(ctx, container.Client)
	})
	if err != nil {
		return err
	}
	return printMessage(cmd.OutOrStdout(), msg)
}
