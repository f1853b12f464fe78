package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/engine/pkg/types"
)

func TestParseOperation_UnknownTagRejected(t *testing.T) {
	_, err := ParseOperation(map[string]any{"type": "bogus"})
	require.Error(t, err)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParseOperation_LimitRequiresPositiveCount(t *testing.T) {
	_, err := ParseOperation(map[string]any{"type": "limit", "count": 0})
	require.Error(t, err)

	op, err := ParseOperation(map[string]any{"type": "limit", "count": 2})
	require.NoError(t, err)
	require.IsType(t, LimitOp{}, op)
}

func TestFilterOp_GreaterThan(t *testing.T) {
	op := FilterOp{Field: "age", Op: "gt", Value: float64(21)}
	elements := []any{
		map[string]any{"age": float64(18)},
		map[string]any{"age": float64(30)},
	}
	out, err := op.Apply(elements, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, float64(30), out[0].(map[string]any)["age"])
}

func TestSelectOp_ProjectsFields(t *testing.T) {
	op := SelectOp{Fields: map[string]string{"out": "name"}}
	elements := []any{map[string]any{"name": "alice", "extra": 1}}
	out, err := op.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", out[0].(map[string]any)["out"])
	_, hasExtra := out[0].(map[string]any)["extra"]
	assert.False(t, hasExtra)
}

func TestSortByOp_Ascending(t *testing.T) {
	op := SortByOp{Field: "n", Order: "asc"}
	elements := []any{
		map[string]any{"n": float64(3)},
		map[string]any{"n": float64(1)},
		map[string]any{"n": float64(2)},
	}
	out, err := op.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out[0].(map[string]any)["n"])
	assert.Equal(t, float64(2), out[1].(map[string]any)["n"])
	assert.Equal(t, float64(3), out[2].(map[string]any)["n"])
}

func TestGroupByOp_SumAndCount(t *testing.T) {
	op := GroupByOp{Key: "category", Aggregations: map[string]string{
		"total": "sum(amount)",
		"n":     "count()",
	}}
	elements := []any{
		map[string]any{"category": "a", "amount": float64(10)},
		map[string]any{"category": "a", "amount": float64(5)},
		map[string]any{"category": "b", "amount": float64(2)},
	}
	out, err := op.Apply(elements, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	a := out[0].(map[string]any)
	assert.Equal(t, "a", a["category"])
	assert.Equal(t, 15.0, a["total"])
	assert.Equal(t, 2, a["n"])
}

func TestLimitAndSkipOps(t *testing.T) {
	elements := []any{1, 2, 3, 4, 5}

	limited, err := LimitOp{Count: 2}.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, limited)

	skipped, err := SkipOp{Count: 3}.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{4, 5}, skipped)
}

func TestParsePipeline_RejectsUnknownFilterOperator(t *testing.T) {
	ops, err := ParsePipeline([]map[string]any{
		{"type": "filter", "field": "score", "op": "bogus"},
	})
	require.Error(t, err)
	require.Nil(t, ops)
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	ops, err := ParsePipeline([]map[string]any{
		{"type": "filter", "field": "score", "op": "gte", "value": float64(0)},
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	elements := []any{
		map[string]any{"score": float64(-1)},
		map[string]any{"score": float64(5)},
	}
	out, err := Run(ops, elements, types.NewTemplateContext(nil))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestArrayOps_ReverseUniqueChunk(t *testing.T) {
	rev, err := ReverseOp{}.Apply([]any{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{3, 2, 1}, rev)

	uniq, err := UniqueOp{}.Apply([]any{1, 1, 2, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, uniq)

	chunked, err := ChunkOp{Size: 2}.Apply([]any{1, 2, 3, 4, 5}, nil)
	require.NoError(t, err)
	require.Len(t, chunked, 3)
	assert.Equal(t, []any{1, 2}, chunked[0])
	assert.Equal(t, []any{5}, chunked[2])
}

func TestMathOps_RoundAndClamp(t *testing.T) {
	elements := []any{map[string]any{"v": 3.14159}}

	rounded, err := MathOp{Field: "v", Precision: 2, Fn: "round"}.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.14, rounded[0].(map[string]any)["v"])

	clamped, err := ClampOp{Field: "v", Min: 0, Max: 1}.Apply(elements, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, clamped[0].(map[string]any)["v"])
}

func TestRunLegacyQuery_JSONPathAndInputNarrowing(t *testing.T) {
	source := map[string]any{
		"response": map[string]any{
			"items": []any{
				map[string]any{"id": float64(1)},
				map[string]any{"id": float64(2)},
			},
		},
	}
	spec := &types.TransformSpec{Input: "response", Query: "items[0].id"}
	v, err := RunLegacyQuery(spec, source)
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)
}

func TestExecutor_PipelineWinsOverLegacyQuery(t *testing.T) {
	resource := &types.TaskResource{Spec: types.TaskResourceSpec{
		Type: types.TaskKindTransform,
		Transform: &types.TransformSpec{
			Query: "should_not_run",
			Pipeline: []map[string]any{
				{"type": "limit", "count": 1},
			},
		},
	}}
	tctx := types.NewTemplateContext(map[string]any{"items": []any{1, 2, 3}})
	exec := New(nil)
	result := exec.Execute(nil, &types.TaskStep{ID: "t"}, resource, tctx)

	require.True(t, result.Success)
	results, ok := result.Output["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)
}
