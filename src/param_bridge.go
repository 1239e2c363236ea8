package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Lock-free parameter bridge between the IPC task and
 *		the audio callback.
 *
 * Description: One atomic 32 bit slot per parameter id, seeded with
 *		the defaults at construction.  The float value is
 *		stored as its raw bit pattern.  The map itself is
 *		immutable after construction, so readers need no lock;
 *		only the slot contents change.
 *
 *		Each slot has one logical producer (the IPC task) and
 *		one consumer (the audio thread).  Cross-slot ordering
 *		is not a property of block-level automation, so plain
 *		atomic loads and stores are all that is needed.
 *
 *		Writes to an unknown id are a silent no-op.  That is a
 *		deliberate forgiveness policy: a hot reload can remove
 *		a parameter while a slider message is in flight, and
 *		tearing the IPC surface for that is not worth it.
 *
 *------------------------------------------------------------------*/

import (
	"math"
	"sort"
	"sync/atomic"
)

type ParamBridge struct {
	slots map[string]*atomic.Uint32 /* structure never mutated after construction */
	ids   []string                  /* sorted, for deterministic snapshots */
}

type ParamValue struct {
	ID    string  `json:"id"`
	Value float32 `json:"value"`
}

func NewParamBridge(specs []ParameterSpec) *ParamBridge {
	var b = &ParamBridge{
		slots: make(map[string]*atomic.Uint32, len(specs)),
		ids:   make([]string, 0, len(specs)),
	}

	for _, s := range specs {
		var slot = new(atomic.Uint32) /* heap allocated once; address stable across threads */
		slot.Store(math.Float32bits(s.Default))
		b.slots[s.ID] = slot
		b.ids = append(b.ids, s.ID)
	}
	sort.Strings(b.ids)

	return b
}

// Write stores a value if the id is known, otherwise does nothing.
func (b *ParamBridge) Write(id string, v float32) {
	var slot = b.slots[id]
	if slot == nil {
		return
	}
	slot.Store(math.Float32bits(v))
}

// Read returns the last written value for a known id.
func (b *ParamBridge) Read(id string) (float32, bool) {
	var slot = b.slots[id]
	if slot == nil {
		return 0, false
	}
	return math.Float32frombits(slot.Load()), true
}

// slot returns the atomic cell itself so the audio runtime can poll it
// per block without a map lookup.  Never call from the audio thread.
func (b *ParamBridge) slot(id string) *atomic.Uint32 {
	return b.slots[id]
}

// Snapshot is for diagnostics only; not for use on the audio thread.
func (b *ParamBridge) Snapshot() []ParamValue {
	var out = make([]ParamValue, 0, len(b.ids))
	for _, id := range b.ids {
		out = append(out, ParamValue{ID: id, Value: math.Float32frombits(b.slots[id].Load())})
	}
	return out
}
