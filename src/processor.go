package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Wrapper around a user DSP instance behind the C vtable.
 *
 * Description: Holds the opaque instance pointer and the vtable, and
 *		marshals Go channel slices into the pointer array the
 *		C ABI wants.  The scratch pointer array lives in the
 *		struct so Process never allocates.
 *
 *		Real-time contract propagated to user code: no
 *		allocation, no blocking syscalls, no locks inside
 *		process().  The runtime cannot enforce that; it is
 *		documented in the SDK instead.
 *
 *------------------------------------------------------------------*/

// #include "wavecraft_abi.h"
//
// static void *wavecraft_call_create(const wavecraft_vtable_s *vt, float sr, uint32_t max_block) {
// 	return vt->create(sr, max_block);
// }
// static void wavecraft_call_process(const wavecraft_vtable_s *vt, void *inst,
// 		float **channels, uint32_t num_channels, uint32_t num_samples) {
// 	vt->process(inst, channels, num_channels, num_samples);
// }
// static void wavecraft_call_set_sample_rate(const wavecraft_vtable_s *vt, void *inst, float sr) {
// 	vt->set_sample_rate(inst, sr);
// }
// static void wavecraft_call_reset(const wavecraft_vtable_s *vt, void *inst) {
// 	vt->reset(inst);
// }
// static void wavecraft_call_drop(const wavecraft_vtable_s *vt, void *inst) {
// 	vt->drop(inst);
// }
// static void wavecraft_call_set_parameter(void *fn, void *inst, uint32_t index, float value) {
// 	((wavecraft_dev_set_parameter_fn)fn)(inst, index, value);
// }
import "C"

import (
	"sync/atomic"
	"unsafe"
)

const MAX_DSP_CHANNELS = 2 /* stereo is the supported channel count */

type Processor struct {
	vt       *C.wavecraft_vtable_s
	inst     unsafe.Pointer
	set_parm unsafe.Pointer /* optional wavecraft_dev_set_parameter */

	chan_ptrs [MAX_DSP_CHANNELS]*C.float /* scratch; audio thread only */

	panic_count atomic.Uint64
	dropped     atomic.Bool
}

func new_processor(vt *C.wavecraft_vtable_s, set_parm unsafe.Pointer, sample_rate float32, max_block uint32) (*Processor, error) {
	var inst = C.wavecraft_call_create(vt, C.float(sample_rate), C.uint32_t(max_block))
	if inst == nil {
		return nil, new_diag(PluginLoadFailed, "load-failed", "plugin create() returned null")
	}

	return &Processor{vt: vt, inst: inst, set_parm: set_parm}, nil
}

/*------------------------------------------------------------------
 *
 * Name:	Process
 *
 * Purpose:	Run one block of audio through the user DSP, in place.
 *
 * Inputs:	channels - up to two equal-length sample slices.
 *
 * Description:	Called from the input audio callback.  If the callee
 *		panics the block is left as it was (passthrough) and
 *		the panic counter is bumped; the library stays loaded.
 *		More than two channels is an upstream bug: log once
 *		per process lifetime would need state, so just count
 *		it as a panic-class event and skip the DSP.
 *
 *------------------------------------------------------------------*/

func (p *Processor) Process(channels [][]float32) {
	if len(channels) == 0 || len(channels) > MAX_DSP_CHANNELS {
		p.panic_count.Add(1)
		return
	}

	var num_samples = len(channels[0])
	if num_samples == 0 {
		return
	}

	for i := range channels {
		p.chan_ptrs[i] = (*C.float)(unsafe.Pointer(&channels[i][0]))
	}

	defer func() {
		if r := recover(); r != nil {
			/* Block stays untouched; silence-passthrough for this block. */
			p.panic_count.Add(1)
		}
	}()

	C.wavecraft_call_process(p.vt, p.inst,
		(**C.float)(unsafe.Pointer(&p.chan_ptrs[0])),
		C.uint32_t(len(channels)), C.uint32_t(num_samples))
}

// SetParameter forwards one parameter value by discovery index.  No-op
// when the plugin does not export the dev parameter entry point.
func (p *Processor) SetParameter(index uint32, value float32) {
	if p.set_parm == nil {
		return
	}
	C.wavecraft_call_set_parameter(p.set_parm, p.inst, C.uint32_t(index), C.float(value))
}

func (p *Processor) HasParameterEntry() bool {
	return p.set_parm != nil
}

func (p *Processor) SetSampleRate(sample_rate float32) {
	C.wavecraft_call_set_sample_rate(p.vt, p.inst, C.float(sample_rate))
}

func (p *Processor) Reset() {
	C.wavecraft_call_reset(p.vt, p.inst)
}

// PanicCount returns how many blocks were silenced by user DSP panics.
func (p *Processor) PanicCount() uint64 {
	return p.panic_count.Load()
}

// Drop releases the DSP instance.  Must not race with Process; the swap
// protocol (install_dsp in audio.go) guarantees no audio callback still
// holds this processor when Drop runs.
func (p *Processor) Drop() {
	if p.dropped.Swap(true) {
		return
	}
	C.wavecraft_call_drop(p.vt, p.inst)
	p.inst = nil
}
