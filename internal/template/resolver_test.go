package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

func TestEvaluateString_Identity(t *testing.T) {
	ctx := types.NewTemplateContext(map[string]any{"name": "world"})
	out, err := EvaluateString("no markers here", ctx)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestEvaluateString_InputPath(t *testing.T) {
	ctx := types.NewTemplateContext(map[string]any{
		"user": map[string]any{"name": "ada", "tags": []any{"a", "b"}},
	})
	out, err := EvaluateString("hello {{input.user.name}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello ada", out)

	out, err = EvaluateString("{{input.user.tags[1]}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", out)
}

func TestEvaluateString_TaskOutput(t *testing.T) {
	ctx := types.NewTemplateContext(nil)
	ctx.SetOutput("A", map[string]any{"x": "A"})

	out, err := EvaluateString("{{tasks.A.output.x}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", out)

	// whole-output reference
	out, err = EvaluateString("{{tasks.A.output}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"x":"A"}`, out)
}

func TestEvaluateString_TaskNotCompleted(t *testing.T) {
	ctx := types.NewTemplateContext(nil)
	_, err := EvaluateString("{{tasks.B.output.x}}", ctx)
	require.Error(t, err)
}

func TestParse_Unbalanced(t *testing.T) {
	res := Parse("{{input.x")
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestParse_InvalidRoot(t *testing.T) {
	res := Parse("{{foo.bar}}")
	assert.False(t, res.Valid)
}

func TestScanTaskRefs(t *testing.T) {
	refs := ScanTaskRefs("{{tasks.A.output.x}} and {{tasks.B.output}} and {{tasks.A.output.y}}")
	assert.ElementsMatch(t, []string{"A", "B"}, refs)
}

func TestReparseIfStructured(t *testing.T) {
	v := ReparseIfStructured(`{"a":1}`)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])

	v = ReparseIfStructured("plain string")
	assert.Equal(t, "plain string", v)
}
