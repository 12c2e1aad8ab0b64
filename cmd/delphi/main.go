package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Delphi/cmd/delphi/commands"
)

var rootCmd = &cobra.Command{
	Use:   "delphi",
	Short: "Delphi - hierarchical natural language understanding engine",
	Long: `Delphi - hierarchical natural language understanding engine.

Delphi classifies utterances through a tree of processors (domain, intent,
entity, role) and resolves recognized entities to canonical values. Models
are trained from application resource directories and persisted to an
artifact store; a serving runner pulls requests over NATS JetStream.

Available commands:
  build    - Train models from application resources and persist them
  evaluate - Run models against labeled test files and report accuracy
  process  - Run one utterance through the engine and print the result
  serve    - Pull requests from JetStream and publish processed results

Examples:
  delphi build --app ./home_assistant            # Train and persist models
  delphi evaluate --app ./home_assistant         # Accuracy per model
  delphi process --app ./home_assistant "turn on the lights"
  delphi serve --app ./home_assistant            # Start a serving worker

Configuration is read from delphi.toml in the working directory (override
with --config) and DELPHI_* environment variables.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Path to configuration file (default: ./delphi.toml)")

	rootCmd.AddCommand(commands.BuildCmd)
	rootCmd.AddCommand(commands.EvaluateCmd)
	rootCmd.AddCommand(commands.ProcessCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
