// ABOUTME: Root command and application wiring for the flowctl engine CLI
// ABOUTME: Configures global flags, catalogs, and the engine configuration

package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flowctl/engine/internal/catalog"
	"github.com/flowctl/engine/internal/config"
	"github.com/flowctl/engine/pkg/types"
)

var (
	cfg             *config.EngineConfig
	logger          types.Logger
	taskCatalog     *catalog.TaskCatalog
	workflowCatalog *catalog.WorkflowCatalog
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flowctl",
	Short: "A wave-scheduled declarative workflow engine",
	Long: `flowctl executes declarative YAML workflows built from a catalog of
reusable task resources, with support for:

• Wave-based concurrent execution honoring a dependency graph
• A restricted {{input.*}} / {{tasks.*.output.*}} template language
• HTTP tasks guarded by retry, cache, and circuit-breaker decorators
• Conditional steps, switch branches, and forEach fan-out
• Sub-workflow invocation with cycle and depth limits
• Transform-pipeline tasks (JSONPath, JMESPath, templated steps)

Examples:
  flowctl run my-workflow                Execute a workflow from the catalog
  flowctl validate my-workflow           Validate a workflow without running it
  flowctl dry-run my-workflow            Show the execution plan and waves
  flowctl list-tasks                     List the task resources in the catalog`,
	Version:           "0.1.0",
	PersistentPreRunE: initEngine,
}

// Execute adds all child commands to the root command and runs it. Called
// once from cmd/flowctl/main.go.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.BindFlags(rootCmd)
	rootCmd.PersistentFlags().String("format", "text", "result output format (text, json)")
}

// initEngine resolves the engine configuration, logger, and catalogs once
// flags have been parsed, ahead of any subcommand's RunE.
func initEngine(cmd *cobra.Command, args []string) error {
	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger = cfg.NewLogger()

	fs := afero.NewOsFs()
	tasks, workflows, err := catalog.LoadDir(fs, cfg.CatalogDir)
	if err != nil {
		return fmt.Errorf("loading catalog %q: %w", cfg.CatalogDir, err)
	}
	taskCatalog = tasks
	workflowCatalog = workflows
	return nil
}

// GetLogger returns the process-wide logger, initializing a bare default
// if a command runs it before initEngine (e.g. a future unit test harness).
func GetLogger() types.Logger {
	if logger == nil {
		if cfg == nil {
			cfg = config.Load()
		}
		logger = cfg.NewLogger()
	}
	return logger
}
