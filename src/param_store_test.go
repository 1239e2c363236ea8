package wavecraft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParamStore_SetGet(t *testing.T) {
	var store = NewParamStore(test_specs("gain"))

	var v, ok = store.Get("gain")
	require.True(t, ok)
	assert.Equal(t, float32(1.0), v, "seeded with the default")

	assert.True(t, store.Set("gain", 0.5))
	v, _ = store.Get("gain")
	assert.Equal(t, float32(0.5), v)

	assert.False(t, store.Set("nope", 1), "unknown ids are rejected")
	_, ok = store.Get("nope")
	assert.False(t, ok)
}

func Test_ParamStore_CarryOverByIdentifier(t *testing.T) {
	var store = NewParamStore(test_specs("gain", "mix"))
	store.Set("gain", 1.7)
	store.Set("mix", 0.3)

	/* The reload renamed "mix" to "blend" and tightened gain's range. */
	var next_specs = []ParameterSpec{
		{ID: "gain", Default: 1.0, Range: ParamRange{Kind: RangeLinear, Min: 0, Max: 1.5}},
		{ID: "blend", Default: 0.5, Range: ParamRange{Kind: RangeLinear, Min: 0, Max: 1}},
	}

	var next = store.carry_over(next_specs)

	var gain, ok = next.Get("gain")
	require.True(t, ok)
	assert.Equal(t, float32(1.5), gain, "carried value is clamped to the new range")

	blend, ok := next.Get("blend")
	require.True(t, ok)
	assert.Equal(t, float32(0.5), blend, "renamed parameter starts over at its default")

	_, ok = next.Get("mix")
	assert.False(t, ok, "disappeared ids drop their values")
}

func Test_ParamStore_AllSorted(t *testing.T) {
	var store = NewParamStore(test_specs("b", "a"))

	var all = store.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}
