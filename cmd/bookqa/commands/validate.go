package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roboverse/bookqa-go/internal/logging"
	"github.com/roboverse/bookqa-go/internal/rag"
	"github.com/roboverse/bookqa-go/internal/validation"
)

// NewValidateCmd constructs the `bookqa validate` command, which runs the
// retrieval smoke checks against the live collection.
func NewValidateCmd() *cobra.Command {
	var goldenPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the retrieval pipeline against a golden test set",
		Long: `Run golden in-domain queries and one out-of-domain query against the
live corpus, check collection stats, and audit metadata completeness.

The built-in test set covers the Physical AI & Robotics corpus; supply
--golden to use a custom YAML test set instead. The command exits non-zero
when validation fails, so it can gate deployments.

Examples:
  bookqa validate
  bookqa validate --golden ./golden.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			set, err := validation.LoadTestSet(goldenPath)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			vstore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			defer vstore.Close()

			searcher, err := rag.NewService(emb, vstore)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			runner, err := validation.NewRunner(searcher, vstore, set, log)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			report, err := runner.Run(ctx)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("validate: failed to render report: %w", err)
			}
			fmt.Println(string(out))

			if !report.Passed {
				return fmt.Errorf("validate: pipeline validation failed (%d/%d queries passed)",
					report.PassedQueries, report.TotalQueries)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&goldenPath, "golden", "", "Path to a YAML golden test set (default: built-in set)")

	return cmd
}
