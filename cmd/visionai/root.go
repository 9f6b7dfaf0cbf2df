package cmd

import (
	"fmt"
	"os"
	"strings"

	// Subcommands
	download "github.com/cozy-creator/vision-ai/cmd/visionai/download"
	outputs "github.com/cozy-creator/vision-ai/cmd/visionai/outputs"
	prepare "github.com/cozy-creator/vision-ai/cmd/visionai/prepare"
	run "github.com/cozy-creator/vision-ai/cmd/visionai/run"
	serve "github.com/cozy-creator/vision-ai/cmd/visionai/serve"
	"github.com/cozy-creator/vision-ai/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "VISIONAI"

var Cmd = &cobra.Command{
	Use:   "visionai",
	Short: "Vision AI CLI",
	Long:  "Downloads object detection, image classification and species identification models and runs them on local images",

	SilenceUsage: true,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`, // convert hyphens to underscores
			`.`, `_`, // convert dots to underscores
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		// Load config and env files
		return config.InitConfig()
	},
}

func GetRootCmd() *cobra.Command {
	return Cmd
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("home", "", "Path to the vision-ai home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("environment", "", "Environment configuration: dev, prod or test")

	viper.BindPFlag("home_dir", pflags.Lookup("home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("environment", pflags.Lookup("environment"))

	Cmd.AddCommand(serve.Cmd, run.Cmd, download.Cmd, prepare.Cmd, outputs.Cmd, versionCmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
