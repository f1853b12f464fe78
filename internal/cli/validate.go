// ABOUTME: Validate command for checking a workflow without running it

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowctl/engine/internal/validate"
)

var validateNamespace string

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate [workflow-name]",
	Short: "Validate a workflow without executing it",
	Long: `Validate checks a workflow resource's structure without dispatching
any task:

• Every step targets exactly one of taskRef, workflowRef, or switch
• taskRef/switch-case targets resolve against the task catalog
• transform taskRefs carry a non-empty transform spec
• condition.if and forEach.items parse as valid templates
• forEach nesting depth stays within the maximum of 3
• workflow outputs only reference known task ids

Examples:
  flowctl validate deploy-service
  flowctl validate deploy-service --namespace staging`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	name := args[0]
	logger := GetLogger()
	logger.Info().Str("workflow", name).Msg("validating workflow")

	workflow, ok := workflowCatalog.Get(validateNamespace, name, "")
	if !ok {
		return fmt.Errorf("workflow %q not found in namespace %q", name, validateNamespace)
	}

	v := validate.New(taskCatalog)
	result := v.Validate(workflow)

	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
	}

	if !result.Valid() {
		fmt.Fprintf(cmd.OutOrStdout(), "validation failed:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e)
		}
		return fmt.Errorf("%d validation error(s)", len(result.Errors))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid\n", name)
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateNamespace, "namespace", "default", "namespace the workflow resource lives in")
}
