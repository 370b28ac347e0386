package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate subcommand.
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <feature-file>",
		Short: "Validate a feature file without submitting it",
		Long: `Parse a feature file and check it has the fields required for
decomposition (id, title, description). This does not call the LLM or
touch the repository — it's the offline check before a real run.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateFeatureFile(args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

func validateFeatureFile(path string, output io.Writer) error {
	features, err := LoadFeatures(path)
	if err != nil {
		fmt.Fprintf(output, "✗ %v\n", err)
		return err
	}

	var errs []string
	for _, f := range features {
		if err := f.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("feature %s: %v", f.ID, err))
		}
	}

	if len(errs) == 0 {
		fmt.Fprintf(output, "✓ %d feature(s) valid\n", len(features))
		return nil
	}

	fmt.Fprintf(output, "✗ Validation failed\n")
	for _, e := range errs {
		fmt.Fprintf(output, "  ✗ %s\n", e)
	}
	return fmt.Errorf("validation failed with %d error(s)", len(errs))
}
