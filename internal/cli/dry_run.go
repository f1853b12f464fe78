// ABOUTME: Dry-run command for showing a workflow's wave plan without executing it

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowctl/engine/internal/orchestrator"
)

var dryRunNamespace string

// dryRunCmd represents the dry-run command.
var dryRunCmd = &cobra.Command{
	Use:   "dry-run [workflow-name]",
	Short: "Show the wave execution plan without running any task",
	Long: `dry-run builds the workflow's execution graph and prints the wave
layering it would run through, without dispatching any task.

Examples:
  flowctl dry-run deploy-service
  flowctl dry-run deploy-service --format json`,
	Args: cobra.ExactArgs(1),
	RunE: dryRunWorkflow,
}

func dryRunWorkflow(cmd *cobra.Command, args []string) error {
	name := args[0]

	workflow, ok := workflowCatalog.Get(dryRunNamespace, name, "")
	if !ok {
		return fmt.Errorf("workflow %q not found in namespace %q", name, dryRunNamespace)
	}

	plan, err := orchestrator.GetExecutionPlan(workflow)
	if err != nil {
		return fmt.Errorf("building execution plan: %w", err)
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dry run - no task will be dispatched\n\n")
	fmt.Fprintf(cmd.OutOrStdout(), "workflow: %s\n", workflow.Name)
	fmt.Fprintf(cmd.OutOrStdout(), "waves: %d\n\n", len(plan.Waves))
	for i, wave := range plan.Waves {
		fmt.Fprintf(cmd.OutOrStdout(), "wave %d:\n", i+1)
		for _, taskID := range wave {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", taskID)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
	dryRunCmd.Flags().StringVar(&dryRunNamespace, "namespace", "default", "namespace the workflow resource lives in")
}
