package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	download "github.com/cozy-creator/vision-ai/cmd/visionai/download"
	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/config"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "prepare [pipeline...]",
	Short: "Download models if needed and check that their sessions load",
	RunE:  runPrepare,
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ids, err := download.ParsePipelines(args)
	if err != nil {
		return err
	}

	tracker := download.NewTracker(cmd.ErrOrStderr())
	app, err := app.NewApp(config.GetConfig(), app.WithEventHandler(tracker.Handle))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.Run(ctx)

	var errs []error
	for _, id := range ids {
		if err := app.Prepare(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: session ready\n", id)
	}
	if ctx.Err() == nil {
		tracker.Wait()
	}

	return errors.Join(errs...)
}
