// ABOUTME: Injected cron-schedule parser for workflow triggers (§6)
// ABOUTME: The orchestrator never evaluates cron itself; this is the one place that does

package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a parsed standard 5-field minute-hour-dom-month-dow cron
// expression. It only answers "when does this fire next" — it does not
// run anything itself.
type Schedule struct {
	spec cron.Schedule
	expr string
}

// Parse parses a standard 5-field cron expression.
func Parse(expr string) (*Schedule, error) {
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return &Schedule{spec: spec, expr: expr}, nil
}

// Next returns the first firing time strictly after from.
func (s *Schedule) Next(from time.Time) time.Time {
	return s.spec.Next(from)
}

func (s *Schedule) String() string {
	return s.expr
}

// Trigger binds a cron schedule to the workflow it fires.
type Trigger struct {
	WorkflowRef string
	Namespace   string
	Input       map[string]any
	Schedule    *Schedule
}

// NewTrigger parses expr and binds it to workflowRef.
func NewTrigger(workflowRef, namespace, expr string, input map[string]any) (*Trigger, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Trigger{WorkflowRef: workflowRef, Namespace: namespace, Input: input, Schedule: sched}, nil
}

// Due reports every trigger in triggers whose schedule fires at or before
// now, given the last time each was checked (by workflowRef). Callers own
// the poll cadence and persistence of lastChecked (no scheduling loop ships
// in this repository); this function is a pure decision, not a running loop.
func Due(triggers []*Trigger, lastChecked map[string]time.Time, now time.Time) []*Trigger {
	var due []*Trigger
	for _, t := range triggers {
		last, ok := lastChecked[t.WorkflowRef]
		if !ok {
			last = now.Add(-time.Second)
		}
		if !t.Schedule.Next(last).After(now) {
			due = append(due, t)
		}
	}
	return due
}
