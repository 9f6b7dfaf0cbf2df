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
	"github.com/cozy-creator/vision-ai/internal/dispatcher"
	"github.com/cozy-creator/vision-ai/internal/types"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "run <pipeline> <image>",
	Short: "Run a pipeline on one image and print the result",
	Args:  cobra.ExactArgs(2),
	RunE:  runPipeline,
}

func init() {
	flags := Cmd.Flags()
	flags.Bool("wait", true, "Download and load the model first when it is not ready")
	flags.Bool("history", false, "Record the result in the history database")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	id, err := types.ParsePipelineID(args[0])
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetBool("wait")
	history, _ := cmd.Flags().GetBool("history")

	tracker := download.NewTracker(cmd.ErrOrStderr())
	opts := []app.OptionFunc{app.WithEventHandler(tracker.Handle)}
	if history {
		opts = append(opts, app.WithDBInitialization())
	}

	app, err := app.NewApp(config.GetConfig(), opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This goroutine is the consumer: handlers run here one at a time.
	go app.Run(ctx)

	results := make(chan types.InferenceResult, 1)
	req := types.InferenceRequest{Pipeline: id, ImagePath: args[1]}
	handler := func(result types.InferenceResult) { results <- result }

	_, err = app.Submit(req, handler)
	if errors.Is(err, dispatcher.ErrModelNotReady) && wait {
		if err := app.Prepare(ctx, id); err != nil {
			return err
		}
		tracker.Wait()
		_, err = app.Submit(req, handler)
	}
	if err != nil {
		return err
	}

	select {
	case result := <-results:
		fmt.Fprintln(cmd.OutOrStdout(), result.Message)
		if !result.OK {
			return errors.New("inference failed")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
