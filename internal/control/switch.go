// ABOUTME: Switch-step evaluator: value-based taskRef dispatch (§4.10)

package control

import (
	"fmt"
	"strings"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// SwitchResult reports which taskRef a switch step resolved to.
type SwitchResult struct {
	TaskRef           string
	MatchedCase       string
	UsedDefault       bool
	EvaluatedValue    string
	Error             error
}

// EvaluateSwitch resolves spec.Value and walks spec.Cases in order, matching
// case-insensitively, with "null" matching an empty or literal-null value.
// The first match wins; otherwise the default branch is used; otherwise the
// step fails.
func EvaluateSwitch(spec *types.SwitchSpec, tctx *types.TemplateContext) SwitchResult {
	value, err := template.EvaluateString(spec.Value, tctx)
	if err != nil {
		return SwitchResult{Error: fmt.Errorf("resolving switch value: %w", err)}
	}

	for _, c := range spec.Cases {
		if switchMatches(c.Match, value) {
			return SwitchResult{TaskRef: c.TaskRef, MatchedCase: c.Match, EvaluatedValue: value}
		}
	}

	if spec.Default != nil {
		return SwitchResult{TaskRef: spec.Default.TaskRef, UsedDefault: true, EvaluatedValue: value}
	}

	return SwitchResult{EvaluatedValue: value, Error: fmt.Errorf("switch value %q matched no case and no default was given", value)}
}

func switchMatches(match, value string) bool {
	if strings.EqualFold(match, "null") {
		return value == ""
	}
	return strings.EqualFold(match, value)
}
