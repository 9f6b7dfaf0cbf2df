package cmd

import (
	"fmt"

	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/services/outputs"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "outputs",
	Short: "Manage generated images",
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of generated images",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := outputs.NewManager(config.GetConfig().OutputsDir).Count()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every generated image",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := outputs.NewManager(config.GetConfig().OutputsDir)
		n, err := m.Clean()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d images from %s\n", n, m.Dir())
		return nil
	},
}

func init() {
	Cmd.AddCommand(countCmd, cleanCmd)
}
