package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/waifuvault/waifuvault-go/internal/download"
	"github.com/waifuvault/waifuvault-go/internal/utils"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// passwordFlag reads --password, or prompts for it with --ask-password.
func passwordFlag(cmd *cobra.Command, flag, askFlag, prompt string) (string, error) {
	password, _ := cmd.Flags().GetString(flag)
	ask, _ := cmd.Flags().GetBool(askFlag)
	if !ask {
		return password, nil
	}
	return utils.ReadPassword(os.Stdin, cmd.ErrOrStderr(), prompt)
}

func newUploadCmd() *cobra.Command {
	var (
		bucket   string
		expires  string
		hide     bool
		oneTime  bool
		filename string
	)

	cmd := &cobra.Command{
		Use:   "upload <file|url|->",
		Short: "Upload a file, a remote URL or stdin",
		Example: heredoc.Doc(`
			# Upload a local file into the configured bucket
			waifuvault upload ./cat.png

			# Let the service fetch a remote file, deleting it after one download
			waifuvault upload https://example.com/cat.png --one-time

			# Upload from stdin
			tar cz ./notes | waifuvault upload - --name notes.tgz --ask-password
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			defaults := container.Config.Upload
			if !cmd.Flags().Changed("bucket") {
				bucket = defaults.Bucket
			}
			if !cmd.Flags().Changed("expires") {
				expires = defaults.Expires
			}
			if !cmd.Flags().Changed("hide-filename") {
				hide = defaults.HideFilename
			}
			if !cmd.Flags().Changed("one-time") {
				oneTime = defaults.OneTimeDownload
			}

			password, err := passwordFlag(cmd, "password", "ask-password", "Password: ")
			if err != nil {
				return err
			}

			source := args[0]
			var req waifuvault.UploadRequest
			switch {
			case source == "-":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				req = waifuvault.NewBytesUpload(data, filename)
			case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
				req = waifuvault.NewURLUpload(source)
			default:
				req = waifuvault.NewFileUpload(source)
			}

			req = req.Bucket(bucket).
				Expires(expires).
				Password(password).
				HideFilename(hide).
				OneTimeDownload(oneTime)

			entry, err := perform(ctx, container, false, func(ctx context.Context) (*waifuvault.FileEntry, error) {
				return container.Client.UploadFile(ctx, req)
			})
			if err != nil {
				return err
			}
			return printFile(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "Bucket to upload into (default from config)")
	cmd.Flags().StringVarP(&expires, "expires", "e", "", "Expiry: a number followed by m, h or d")
	cmd.Flags().StringP("password", "P", "", "Protect the file with a password")
	cmd.Flags().Bool("ask-password", false, "Prompt for the password")
	cmd.Flags().BoolVar(&hide, "hide-filename", false, "Hide the file name in the URL")
	cmd.Flags().BoolVar(&oneTime, "one-time", false, "Delete the file after its first download")
	cmd.Flags().StringVarP(&filename, "name", "n", "stdin", "File name used when uploading stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "ask-password")
	return cmd
}

func newInfoCmd() *cobra.Command {
	var formatted bool

	cmd := &cobra.Command{
		Use:   "info <token>",
		Short: "Show information about a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			req := waifuvault.NewGetRequest(args[0]).WithFormatted(formatted)
			entry, err := call(ctx, container, func(ctx context.Context) (*waifuvault.FileEntry, error) {
				return container.Client.FileInfo(ctx, req)
			})
			if err != nil {
				return err
			}
			return printFile(cmd.OutOrStdout(), entry)
		},
	}
	cmd.Flags().BoolVarP(&formatted, "formatted", "f", true, "Show the retention period in human readable form")
	return cmd
}

func newModifyCmd() *cobra.Command {
	var (
		expiry string
		hide   bool
	)

	cmd := &cobra.Command{
		Use:   "modify <token>",
		Short: "Change the password, expiry or filename visibility of a file",
		Long: heredoc.Doc(`
			Changes options of a stored file. Only the options given on the command
			line are sent; everything else is left unchanged.

			Replacing the password of a protected file requires the current one
			as --previous-password.
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("password") && !flags.Changed("ask-password") &&
				!flags.Changed("expires") && !flags.Changed("hide-filename") {
				return fmt.Errorf("nothing to modify: set --password, --expires or --hide-filename")
			}

			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			req := waifuvault.NewModificationRequest(args[0])
			if flags.Changed("password") || flags.Changed("ask-password") {
				password, err := passwordFlag(cmd, "password", "ask-password", "New password: ")
				if err != nil {
					return err
				}
				req = req.Password(password)
			}
			if flags.Changed("previous-password") {
				previous, _ := flags.GetString("previous-password")
				req = req.PreviousPassword(previous)
			}
			if flags.Changed("expires") {
				req = req.CustomExpiry(expiry)
			}
			if flags.Changed("hide-filename") {
				req = req.HideFilename(hide)
			}

			entry, err := perform(ctx, container, false, func(ctx context.Context) (*waifuvault.FileEntry, error) {
				return container.Client.UpdateFile(ctx, req)
			})
			if err != nil {
				return err
			}
			return printFile(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().StringP("password", "P", "", "New password; empty removes the protection")
	cmd.Flags().Bool("ask-password", false, "Prompt for the new password")
	cmd.Flags().String("previous-password", "", "Current password of a protected file")
	cmd.Flags().StringVarP(&expiry, "expires", "e", "", "New expiry: a number followed by m, h or d")
	cmd.Flags().BoolVar(&hide, "hide-filename", false, "Hide the file name in the URL")
	cmd.MarkFlagsMutuallyExclusive("password", "ask-password")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <token>",
		Short: "Delete a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			ok, err := perform(ctx, container, false, func(ctx context.Context) (bool, error) {
				return container.Client.DeleteFile(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return printDeleted(cmd.OutOrStdout(), args[0], ok)
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a file by its URL",
		Example: heredoc.Doc(`
			# Save into the configured download directory
			waifuvault download https://waifuvault.moe/f/1712345678/cat.png

			# Write a protected file to stdout
			waifuvault download <url> --ask-password -o -
		`),
		Args: cobra.ExactArgs(1),
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

			data, err := perform(ctx, container, false, func(ctx context.Context) ([]byte, error) {
				return container.Client.DownloadFile(ctx, args[0], password)
			})
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				name := download.FileName(waifuvault.FileEntry{Token: "download", URL: args[0]})
				output = filepath.Join(container.Config.DownloadDirectory, name)
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			container.Logger.Infof("wrote %d bytes to %s", len(data), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: download_directory/<name>)")
	cmd.Flags().StringP("password", "P", "", "Password of a protected file")
	cmd.Flags().Bool("ask-password", false, "Prompt for the password")
	cmd.MarkFlagsMutuallyExclusive("password", "ask-password")
	return cmd
}
