package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegrate_NilSides(t *testing.T) {
	data := map[string]any{"a": 1}
	priority := map[string]any{"b": 2}

	assert.Equal(t, data, Integrate(nil, data))
	assert.Equal(t, priority, Integrate(priority, nil))
}

func TestIntegrate_OverwriteAndAdd(t *testing.T) {
	data := map[string]any{"x": 1, "keep": "old"}
	priority := map[string]any{"x": 2, "new": true}

	out := Integrate(priority, data)

	assert.Equal(t, 2, out["x"])
	assert.Equal(t, "old", out["keep"])
	assert.Equal(t, true, out["new"])
}

func TestIntegrate_RemoveSentinelDeletes(t *testing.T) {
	data := map[string]any{"gone": 1, "stays": 2}
	out := Integrate(map[string]any{"gone": Remove}, data)

	_, ok := out["gone"]
	assert.False(t, ok)
	assert.Equal(t, 2, out["stays"])
}

func TestIntegrate_NestedMapsMergeRecursively(t *testing.T) {
	data := map[string]any{"cfg": map[string]any{"a": 1, "b": 2}}
	priority := map[string]any{"cfg": map[string]any{"b": 3, "c": 4}}

	out := Integrate(priority, data)

	cfg := out["cfg"].(map[string]any)
	assert.Equal(t, 1, cfg["a"])
	assert.Equal(t, 3, cfg["b"])
	assert.Equal(t, 4, cfg["c"])
}

func TestIntegrate_NonMapReplacesWholesale(t *testing.T) {
	data := map[string]any{"v": map[string]any{"deep": true}}
	out := Integrate(map[string]any{"v": []any{1, 2}}, data)

	assert.Equal(t, []any{1, 2}, out["v"])
}

func TestMatches_SubsetLaw(t *testing.T) {
	candidate := map[string]any{"key": "r1", "kind": "user", "n": 3}

	assert.True(t, Matches(map[string]any{"kind": "user"}, candidate))
	assert.True(t, Matches(map[string]any{}, candidate))
	assert.True(t, Matches(map[string]any{"kind": "user", "n": 3}, candidate))
	assert.False(t, Matches(map[string]any{"kind": "admin"}, candidate))
	assert.False(t, Matches(map[string]any{"missing": 1}, candidate))
}

func TestMatches_DeepEquality(t *testing.T) {
	candidate := map[string]any{"tags": []any{"a", "b"}}

	assert.True(t, Matches(map[string]any{"tags": []any{"a", "b"}}, candidate))
	assert.False(t, Matches(map[string]any{"tags": []any{"b", "a"}}, candidate))
}

func TestClone_Isolation(t *testing.T) {
	src := map[string]any{"nested": map[string]any{"v": 1}, "list": []any{1, 2}}
	cp := Clone(src).(map[string]any)

	cp["nested"].(map[string]any)["v"] = 99
	cp["list"].([]any)[0] = 99

	assert.Equal(t, 1, src["nested"].(map[string]any)["v"])
	assert.Equal(t, 1, src["list"].([]any)[0])
}
