package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/vision-ai/internal/app"
	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:       "download [pipeline...]",
	Short:     "Download the models of the given pipelines, or all of them",
	ValidArgs: pipelineNames(),
	Args:      cobra.OnlyValidArgs,
	RunE:      runDownload,
}

func pipelineNames() []string {
	names := make([]string, len(types.Pipelines))
	for i, id := range types.Pipelines {
		names[i] = string(id)
	}
	return names
}

// ParsePipelines returns the pipelines named in args, or every pipeline when args is empty.
func ParsePipelines(args []string) ([]types.PipelineID, error) {
	if len(args) == 0 {
		return types.Pipelines, nil
	}

	ids := make([]types.PipelineID, 0, len(args))
	for _, arg := range args {
		id, err := types.ParsePipelineID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ids, err := ParsePipelines(args)
	if err != nil {
		return err
	}

	tracker := NewTracker(cmd.ErrOrStderr())
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
		state, err := app.Download(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if state.Status == types.ArtifactPresent {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: already downloaded\n", id)
		}
	}

	for _, id := range ids {
		if err := app.WaitDownload(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	if ctx.Err() == nil {
		tracker.Wait()
	}

	return errors.Join(errs...)
}
