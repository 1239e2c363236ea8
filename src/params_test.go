package wavecraft

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_ParamRange_ClampLinear(t *testing.T) {
	var r = ParamRange{Kind: RangeLinear, Min: 0, Max: 2}

	assert.Equal(t, float32(2.0), r.Clamp(9.9))
	assert.Equal(t, float32(0.0), r.Clamp(-1))
	assert.Equal(t, float32(0.5), r.Clamp(0.5))
}

func Test_ParamRange_ClampProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var min = rapid.Float32Range(-100, 99).Draw(t, "min")
		var max = rapid.Float32Range(min+1, 101).Draw(t, "max")
		var r = ParamRange{Kind: RangeLinear, Min: min, Max: max}

		var v = rapid.Float32Range(-1000, 1000).Draw(t, "v")
		var c = r.Clamp(v)

		assert.GreaterOrEqual(t, c, min)
		assert.LessOrEqual(t, c, max)
		assert.Equal(t, c, r.Clamp(c), "clamp is idempotent")
	})
}

func Test_ParamRange_SteppedRounds(t *testing.T) {
	var r = ParamRange{Kind: RangeStepped, Min: 0, Max: 5}

	assert.Equal(t, float32(3), r.Clamp(2.6))
	assert.Equal(t, float32(2), r.Clamp(2.4))
	assert.Equal(t, float32(5), r.Clamp(7.2))
}

func Test_ParamRange_BoolSnaps(t *testing.T) {
	var r = ParamRange{Kind: RangeBool}

	assert.Equal(t, float32(1), r.Clamp(0.5))
	assert.Equal(t, float32(1), r.Clamp(42))
	assert.Equal(t, float32(0), r.Clamp(0.49))
	assert.Equal(t, float32(0), r.Clamp(-3))
}

const sample_params_json = `[
  {"id": "gain", "name": "Gain", "default": 1.0, "unit": "x",
   "range": {"type": "linear", "min": 0, "max": 2}},
  {"id": "drive", "name": "Drive", "default": 1.0,
   "range": {"type": "skewed", "min": 0.1, "max": 10, "skew": 0.3}},
  {"id": "mode", "name": "Mode", "default": 0,
   "range": {"type": "stepped", "min": 0, "max": 3}},
  {"id": "bypass", "name": "Bypass", "default": 0,
   "range": {"type": "bool"}}
]`

func Test_parse_params_json(t *testing.T) {
	var specs, err = parse_params_json([]byte(sample_params_json))
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, "gain", specs[0].ID)
	assert.Equal(t, "x", specs[0].Unit)
	assert.Equal(t, RangeSkewed, specs[1].Range.Kind)
	assert.Equal(t, float32(0.3), specs[1].Range.Skew)
	assert.Equal(t, RangeBool, specs[3].Range.Kind)
}

func Test_parse_params_json_FailsClosed(t *testing.T) {
	var cases = map[string]string{
		"not json":        `{{{`,
		"not a list":      `{"id": "gain"}`,
		"empty id":        `[{"id": "", "default": 0, "range": {"type": "bool"}}]`,
		"duplicate id":    `[{"id": "a", "default": 0, "range": {"type": "bool"}}, {"id": "a", "default": 0, "range": {"type": "bool"}}]`,
		"inverted range":  `[{"id": "a", "default": 0, "range": {"type": "linear", "min": 2, "max": 0}}]`,
		"bad skew":        `[{"id": "a", "default": 1, "range": {"type": "skewed", "min": 0, "max": 2, "skew": -1}}]`,
		"unknown kind":    `[{"id": "a", "default": 0, "range": {"type": "wobbly"}}]`,
		"default outside": `[{"id": "a", "default": 5, "range": {"type": "linear", "min": 0, "max": 2}}]`,
	}

	for name, bad := range cases {
		var _, err = parse_params_json([]byte(bad))
		assert.Error(t, err, name)
	}
}

func Test_ParameterSpec_JSONRoundTrip(t *testing.T) {
	var specs, err = parse_params_json([]byte(sample_params_json))
	require.NoError(t, err)

	var data, marshal_err = json.Marshal(specs)
	require.NoError(t, marshal_err)

	again, err := parse_params_json(data)
	require.NoError(t, err)
	assert.Equal(t, specs, again, "spec ordering and content survive a round trip")
}
