package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

func TestEvaluateCondition_SimpleComparison(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"env": "production"})
	result := EvaluateCondition(&types.ConditionSpec{If: `{{input.env}} == 'production'`}, tctx)
	require.NoError(t, result.Error)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluateCondition_LogicalOperators(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"count": "5", "enabled": "true"})
	result := EvaluateCondition(&types.ConditionSpec{If: `{{input.count}} > 3 && {{input.enabled}} == 'true'`}, tctx)
	require.NoError(t, result.Error)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluateCondition_Negation(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"flag": "false"})
	result := EvaluateCondition(&types.ConditionSpec{If: `!({{input.flag}} == 'true')`}, tctx)
	require.NoError(t, result.Error)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluateCondition_NumericComparison(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"n": "10"})
	result := EvaluateCondition(&types.ConditionSpec{If: `{{input.n}} >= 10`}, tctx)
	require.NoError(t, result.Error)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluateCondition_FalseSkips(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{"env": "staging"})
	result := EvaluateCondition(&types.ConditionSpec{If: `{{input.env}} == 'production'`}, tctx)
	require.NoError(t, result.Error)
	assert.False(t, result.ShouldExecute)
}

func TestEvaluateCondition_TemplateErrorPropagates(t *testing.T) {
	tctx := types.NewTemplateContext(map[string]any{})
	result := EvaluateCondition(&types.ConditionSpec{If: `{{tasks.missing.output.x}} == '1'`}, tctx)
	assert.Error(t, result.Error)
}
