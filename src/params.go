package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Parameter metadata as discovered from a plugin.
 *
 * Description: A ParameterSpec is a value object: a stable string id
 *		(the IPC key), a display name, a default, a unit and a
 *		range.  Specs are immutable once discovered; a hot
 *		reload replaces the whole list.
 *
 *		The JSON shape matches what the plugin's exported
 *		wavecraft_get_params_json() produces.  Readers fail
 *		closed: anything that does not parse into a valid spec
 *		list is treated as missing.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/json"
	"fmt"
	"math"
)

type RangeKind string

const (
	RangeLinear  RangeKind = "linear"
	RangeSkewed  RangeKind = "skewed"
	RangeStepped RangeKind = "stepped"
	RangeBool    RangeKind = "bool"
)

type ParamRange struct {
	Kind RangeKind `json:"type"`
	Min  float32   `json:"min,omitempty"`
	Max  float32   `json:"max,omitempty"`
	Skew float32   `json:"skew,omitempty"` /* skew factor, RangeSkewed only */
}

type ParameterSpec struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Default float32    `json:"default"`
	Range   ParamRange `json:"range"`
	Unit    string     `json:"unit,omitempty"`
}

// ProcessorEntry is one row of the processor catalog, the plugin's own
// listing of the DSP processors it can construct.
type ProcessorEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

/*------------------------------------------------------------------
 *
 * Name:	Clamp
 *
 * Purpose:	Force a value into the representable range.
 *
 * Description:	Out-of-range IPC writes are clamped rather than
 *		rejected; UI sliders can race with range tightening
 *		after a reload.  Stepped ranges also round to the
 *		nearest step, bool ranges snap to 0 or 1.
 *
 *------------------------------------------------------------------*/

func (r ParamRange) Clamp(v float32) float32 {
	switch r.Kind {
	case RangeBool:
		if v >= 0.5 {
			return 1
		}
		return 0
	case RangeStepped:
		v = clamp32(v, r.Min, r.Max)
		return float32(math.Round(float64(v)))
	case RangeLinear, RangeSkewed:
		return clamp32(v, r.Min, r.Max)
	}
	return v
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (r ParamRange) validate() error {
	switch r.Kind {
	case RangeBool:
		return nil
	case RangeLinear, RangeStepped:
		if !(r.Min < r.Max) {
			return fmt.Errorf("range min %v not below max %v", r.Min, r.Max)
		}
		return nil
	case RangeSkewed:
		if !(r.Min < r.Max) {
			return fmt.Errorf("range min %v not below max %v", r.Min, r.Max)
		}
		if r.Skew <= 0 {
			return fmt.Errorf("skew factor %v not positive", r.Skew)
		}
		return nil
	}
	return fmt.Errorf("unknown range type %q", r.Kind)
}

/*------------------------------------------------------------------
 *
 * Name:	parse_params_json
 *
 * Purpose:	Parse and validate a parameter spec list.
 *
 * Returns:	The spec list, or an error if the JSON shape is wrong.
 *		Duplicate ids, empty ids, invalid ranges and defaults
 *		outside the range are all rejected so a half-written
 *		sidecar or a buggy plugin cannot poison the bridge.
 *
 *------------------------------------------------------------------*/

func parse_params_json(data []byte) ([]ParameterSpec, error) {
	var specs []ParameterSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parameter json: %w", err)
	}

	if err := validate_specs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func validate_specs(specs []ParameterSpec) error {
	var seen = make(map[string]bool, len(specs))
	for i := range specs {
		var s = &specs[i]
		if s.ID == "" {
			return fmt.Errorf("parameter %d has an empty id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate parameter id %q", s.ID)
		}
		seen[s.ID] = true

		if err := s.Range.validate(); err != nil {
			return fmt.Errorf("parameter %q: %w", s.ID, err)
		}

		if s.Range.Clamp(s.Default) != s.Default {
			return fmt.Errorf("parameter %q: default %v outside range", s.ID, s.Default)
		}
	}

	return nil
}
