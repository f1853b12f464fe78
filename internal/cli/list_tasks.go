// ABOUTME: List-tasks command for showing the task resources in the catalog

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/flowctl/engine/pkg/types"
)

// listTasksCmd represents the list-tasks command.
var listTasksCmd = &cobra.Command{
	Use:   "list-tasks",
	Short: "List the task resources registered in the catalog",
	Long: `Display every task resource the catalog loaded, grouped by kind
(http, transform), to help authors discover what taskRef values a
workflow step can target.

Examples:
  flowctl list-tasks
  flowctl list-tasks --namespace staging`,
	RunE: listTasks,
}

var listTasksNamespace string

func listTasks(cmd *cobra.Command, args []string) error {
	all := taskCatalog.All()

	byKind := map[types.TaskKind][]*types.TaskResource{}
	for _, r := range all {
		if listTasksNamespace != "" && r.Namespace != listTasksNamespace {
			continue
		}
		kind := r.Spec.EffectiveType()
		byKind[kind] = append(byKind[kind], r)
	}

	kinds := []types.TaskKind{types.TaskKindHTTP, types.TaskKindTransform}
	total := 0
	for _, kind := range kinds {
		resources := byKind[kind]
		if len(resources) == 0 {
			continue
		}
		sort.Slice(resources, func(i, j int) bool { return resources[i].Name < resources[j].Name })
		fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", kind)
		for _, r := range resources {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-24s namespace=%s version=%s\n", r.Name, r.Namespace, versionOrDefault(r.Version()))
			total++
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "total: %d task resource(s)\n", total)
	return nil
}

func versionOrDefault(v string) string {
	if v == "" {
		return "(latest)"
	}
	return v
}

func init() {
	rootCmd.AddCommand(listTasksCmd)
	listTasksCmd.Flags().StringVar(&listTasksNamespace, "namespace", "", "restrict to a single namespace (all namespaces if empty)")
}
