package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/server"
	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.Int("workers", config.DefaultWorkers, "Number of inference workers")
	flags.StringSlice("warmup", []string{}, "Pipelines to download and load on startup")
	flags.String("filesystem-type", config.FilesystemLocal, "Where annotated images are mirrored: 'local' or 's3'")

	flags.String("db-dsn", "", "History database DSN. Empty uses a sqlite file in the data directory")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-public-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	bindFlags(flags)
}

func bindFlags(flags *pflag.FlagSet) {
	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("workers", flags.Lookup("workers"))
	viper.BindPFlag("filesystem_type", flags.Lookup("filesystem-type"))

	// Database
	viper.BindPFlag("db.dsn", flags.Lookup("db-dsn"))

	// S3 Credentials
	viper.BindPFlag("s3.access_key", flags.Lookup("s3-access-key"))
	viper.BindPFlag("s3.secret_key", flags.Lookup("s3-secret-key"))
	viper.BindPFlag("s3.region_name", flags.Lookup("s3-region-name"))
	viper.BindPFlag("s3.bucket_name", flags.Lookup("s3-bucket-name"))
	viper.BindPFlag("s3.folder", flags.Lookup("s3-folder"))
	viper.BindPFlag("s3.public_url", flags.Lookup("s3-public-url"))
	viper.BindPFlag("s3.endpoint_url", flags.Lookup("s3-endpoint-url"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := app.NewApp(config.GetConfig(),
		app.WithDBInitialization(),
		app.WithFileUploader(),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(app.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	go func() {
		errc <- app.Run(ctx)
	}()

	warmup, _ := cmd.Flags().GetStringSlice("warmup")
	for _, name := range warmup {
		id, err := types.ParsePipelineID(name)
		if err != nil {
			return err
		}
		if err := app.Warm(id); err != nil {
			return err
		}
	}

	srv, err := server.NewServer(app.Config())
	if err != nil {
		return err
	}
	srv.SetupRoutes(app)

	go func() {
		app.Logger.Info("server started", zap.String("addr", srv.Addr()))
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		return srv.Stop(app.Context())
	}
}
