// ABOUTME: Run command for executing a catalog workflow end to end

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/flowctl/engine/internal/cache"
	"github.com/flowctl/engine/internal/orchestrator"
	"github.com/flowctl/engine/pkg/types"
)

var (
	runNamespace string
	runInputFile string
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run [workflow-name]",
	Short: "Execute a workflow from the catalog",
	Long: `Execute a workflow resource from the configured catalog. Waves of
ready tasks run concurrently up to max-concurrency, honoring conditions,
switch branches, forEach fan-out, and sub-workflow dispatch.

Examples:
  flowctl run deploy-service
  flowctl run deploy-service --namespace staging
  flowctl run deploy-service --input payload.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	name := args[0]

	workflow, ok := workflowCatalog.Get(runNamespace, name, "")
	if !ok {
		return fmt.Errorf("workflow %q not found in namespace %q", name, runNamespace)
	}

	input, err := loadInput(runInputFile)
	if err != nil {
		return fmt.Errorf("loading input: %w", err)
	}

	store, err := buildCacheStore()
	if err != nil {
		return fmt.Errorf("building cache store: %w", err)
	}

	orch := orchestrator.New(taskCatalog, workflowCatalog, orchestrator.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         GetLogger(),
		CacheStore:     store,
		BreakerConfig:  cfg.Breaker,
	})

	result := orch.Run(cmd.Context(), workflow, input)
	if err := printResult(cmd, result); err != nil {
		return err
	}

	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func buildCacheStore() (cache.Store, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryStore(GetLogger()), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return cache.NewRedisStore(client, GetLogger()), nil
}

func loadInput(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("parsing %s as JSON: %w", path, err)
	}
	return input, nil
}

func printResult(cmd *cobra.Command, result *types.WorkflowExecutionResult) error {
	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	icon := "ok"
	if !result.Success {
		icon = "FAILED"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s execution %s (%s)\n", icon, result.ExecutionID, result.TotalDuration)
	for id, task := range result.TaskResults {
		status := "ok"
		switch {
		case task.WasSkipped:
			status = "skipped: " + task.SkipReason
		case !task.Success:
			status = "FAILED"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %s\n", id, status)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", e)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runNamespace, "namespace", "default", "namespace the workflow resource lives in")
	runCmd.Flags().StringVar(&runInputFile, "input", "", "path to a JSON file supplying the workflow input")
}
