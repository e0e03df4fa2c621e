package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/jwalton/gchalk"
	"github.com/spf13/cobra"
	"github.com/waifuvault/waifuvault-go/internal/app"
	"github.com/waifuvault/waifuvault-go/internal/config"
	"github.com/waifuvault/waifuvault-go/internal/http"
	"github.com/waifuvault/waifuvault-go/internal/utils"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

const version = "0.3.0"

var (
	configPath string
	jsonOutput bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Stderr.WriteString(gchalk.Stderr.BrightRed(err.Error()) + "\n")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Get default config path
	defaultConfigPath, err := config.DefaultConfigPath()
	if err != nil {
		defaultConfigPath = "./config.toml"
	}

	rootCmd := &cobra.Command{
		Use:   "waifuvault",
		Short: "WaifuVault file hosting client",
		Long: heredoc.Doc(`
			waifuvault uploads, inspects and downloads files on a WaifuVault service,
			and manages buckets and albums.

			Settings are read from the config file and WAIFUVAULT_* environment
			variables, e.g. WAIFUVAULT_BASE_URL or WAIFUVAULT_BUCKET.
		`),
		Example: heredoc.Doc(`
			# Upload a file that expires after an hour
			waifuvault upload ./cat.png --expires 1h

			# Mirror a bucket into ./backup
			waifuvault bucket pull <bucket-token> -o ./backup
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newModifyCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newBucketCmd())
	rootCmd.AddCommand(newAlbumCmd())
	rootCmd.AddCommand(newMockServerCmd())
	rootCmd.AddCommand(newGenerateConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads the configuration and builds the shared dependencies.
func setup() (*app.Container, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := app.NewContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}
	return container, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newMockServerCmd() *cobra.Command {
	var (
		bindAddress string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory WaifuVault service",
		Long: heredoc.Doc(`
			Runs a local WaifuVault service that keeps everything in memory. Point
			base_url at http://<bind_address>:<port>/rest to use it.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			container, err := setup()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				container.Config.Server.BindAddress = bindAddress
			}
			if cmd.Flags().Changed("port") {
				container.Config.Server.Port = port
			}
			if err := container.Config.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			container.Logger.Infof("Starting waifuvault mock server, version %s", version)

			server, err := http.NewServer(container)
			if err != nil {
				return err
			}
			return server.StartWithContext(ctx)
		},
	}
	cmd.Flags().StringVar(&bindAddress, "bind", "", "Address to listen on (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var (
		bucket       string
		createBucket bool
	)

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if createBucket {
				container, err := setup()
				if err != nil {
					return err
				}
				ctx, stop := signalContext()
				defer stop()

				created, err := perform(ctx, container, false, func(ctx context.Context) (*waifuvault.BucketEntry, error) {
					return container.Client.CreateBucket(ctx)
				})
				if err != nil {
					return err
				}
				bucket = created.Token
			}
			return utils.GenerateConfig(cmd.OutOrStdout(), configPath, bucket)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket token to upload into by default")
	cmd.Flags().BoolVar(&createBucket, "create-bucket", false, "Create a new bucket and use it by default")
	cmd.MarkFlagsMutuallyExclusive("bucket", "create-bucket")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "waifuvault version %s\n", version)
		},
	}
}
