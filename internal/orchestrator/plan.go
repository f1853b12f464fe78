// ABOUTME: Dry-run execution plan: wave layering without dispatching any task (§4.11)

package orchestrator

import (
	"github.com/flowctl/engine/internal/graph"
	"github.com/flowctl/engine/pkg/types"
)

// ExecutionPlan is the wave layering a workflow would run through, computed
// without executing any task.
type ExecutionPlan struct {
	Waves [][]string
}

// GetExecutionPlan builds the execution graph for workflow and returns its
// wave layering, or an error if the graph is invalid.
func GetExecutionPlan(workflow *types.WorkflowResource) (*ExecutionPlan, error) {
	g, err := graph.Build(workflow.Spec.Tasks)
	if err != nil {
		return nil, err
	}
	return &ExecutionPlan{Waves: g.Waves()}, nil
}
