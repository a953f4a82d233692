// Package commands defines all Cobra CLI commands for the bookqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/roboverse/bookqa-go/internal/audit"
	"github.com/roboverse/bookqa-go/internal/config"
	"github.com/roboverse/bookqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bookqa",
		Short: "Retrieval-augmented Q&A backend for the Physical AI & Robotics book",
		Long: `bookqa answers questions about the Physical AI & Robotics textbook corpus.

It serves an HTTP API backed by Qdrant vector search and a tool-calling LLM
agent, and ships the supporting corpus commands: ingestion of the published
documentation site and golden-query validation of the retrieval pipeline.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.bookqa/config.yaml).
See 'bookqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.bookqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewValidateCmd(),
		NewVersionCmd(),
	)

	return root
}
