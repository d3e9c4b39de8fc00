package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalcraft/evalcraft/internal/models"
	"github.com/evalcraft/evalcraft/internal/validation"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <runspec.yaml>",
		Short: "Validate a run spec without executing it",
		Long: `Validate a run spec file against the schema and structural rules.

Reports every violation with its location, so a spec can be fixed in one
pass before spending time on a real run.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	specPath := args[0]

	schemaErrs, err := validation.ValidateRunSpecFile(specPath)
	if err != nil {
		return err
	}

	if len(schemaErrs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d problem(s)\n", specPath, len(schemaErrs))
		for _, e := range schemaErrs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
		}
		return fmt.Errorf("run spec is not valid")
	}

	// Structural rules the schema cannot express (duplicate names etc.)
	if _, err := models.LoadRunSpec(specPath); err != nil {
		return fmt.Errorf("run spec is not valid: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", specPath)
	return nil
}
