// ABOUTME: Orchestration-cost telemetry per §4.11's closing subsection

package orchestrator

import (
	"time"

	"github.com/flowctl/engine/pkg/types"
)

// computeOrchestrationCost derives setup/teardown/scheduling overhead from
// each wave's start/end timestamps, per §4.11:
//
//	schedulingOverhead = sum over waves>1 of (wave_start - previous_wave_end)
//	setup              = first-task start - execution start
//	teardown           = execution end - last-task end
//	orchestrationCostPercentage = 100 * (setup+teardown+schedulingOverhead) / totalDuration
func computeOrchestrationCost(executionStart time.Time, waveStarts, waveEnds []time.Time, taskExecutionDuration, totalDuration time.Duration) *types.OrchestrationCost {
	if len(waveStarts) == 0 {
		return nil
	}

	var schedulingOverhead time.Duration
	for i := 1; i < len(waveStarts); i++ {
		schedulingOverhead += waveStarts[i].Sub(waveEnds[i-1])
	}

	setup := waveStarts[0].Sub(executionStart)
	executionEnd := executionStart.Add(totalDuration)
	teardown := executionEnd.Sub(waveEnds[len(waveEnds)-1])

	var percent float64
	if totalDuration > 0 {
		percent = 100 * float64(setup+teardown+schedulingOverhead) / float64(totalDuration)
	}

	return &types.OrchestrationCost{
		SetupDuration:            setup,
		TeardownDuration:         teardown,
		SchedulingOverhead:       schedulingOverhead,
		TaskExecutionDuration:    taskExecutionDuration,
		OrchestrationCostPercent: percent,
	}
}
