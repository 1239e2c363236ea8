package wavecraft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bench_runtime builds an AudioRuntime the way audio_start does, minus
// the device streams, so the callback path can be exercised directly.
func bench_runtime(block int) *AudioRuntime {
	var rt = &AudioRuntime{
		block_size:  block,
		sample_rate: 48000,
		meters:      new_meter_tap(),
		ring:        new_spsc_ring(block, NUM_CHANNELS),
		inter:       make([]float32, block*NUM_CHANNELS),
		duplex:      true,
	}
	for ch := 0; ch < NUM_CHANNELS; ch++ {
		rt.deinter[ch] = make([]float32, block)
	}
	return rt
}

func Test_process_input_PassthroughWithoutDsp(t *testing.T) {
	var rt = bench_runtime(4)

	var in = []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3, 0.4, -0.4}
	rt.process_input(in)

	var out = make([]float32, 8)
	require.Equal(t, 8, rt.ring.pop(out))
	assert.Equal(t, in, out, "no DSP installed means passthrough")

	var frame = <-rt.meters.frames
	assert.Equal(t, uint64(1), frame.Counter)
	assert.Equal(t, float32(0.4), frame.Peak[0])
	assert.Equal(t, float32(0.4), frame.Peak[1])
	assert.Equal(t, float32(48000), frame.SampleRate)
}

func Test_process_input_CounterIsMonotonic(t *testing.T) {
	var rt = bench_runtime(4)
	var in = make([]float32, 8)

	for i := 1; i <= 5; i++ {
		rt.process_input(in)
		rt.ring.pop(make([]float32, 8))
		var frame = <-rt.meters.frames
		assert.Equal(t, uint64(i), frame.Counter)
	}
}

func Test_process_input_RejectsOversizedBlock(t *testing.T) {
	var rt = bench_runtime(4)

	rt.process_input(make([]float32, 64))

	assert.Equal(t, uint64(1), rt.callback_errors.Load())
	assert.Equal(t, 0, rt.ring.fill())
}

func Test_process_input_ZeroAllocations(t *testing.T) {
	var rt = bench_runtime(128)
	var in = make([]float32, 128*NUM_CHANNELS)
	for i := range in {
		in[i] = float32(i%7) * 0.1
	}

	/* Warm up (the first publishes land in the channel buffer). */
	rt.process_input(in)

	var out = make([]float32, 128*NUM_CHANNELS)
	var allocs = testing.AllocsPerRun(200, func() {
		rt.process_input(in)
		rt.ring.pop(out)
	})

	assert.Zero(t, allocs, "audio callbacks must not allocate")
}

func Test_process_output_ZeroFillsUnderflow(t *testing.T) {
	var rt = bench_runtime(4)

	rt.ring.push([]float32{1, 2})

	var out = []float32{9, 9, 9, 9, 9, 9}
	rt.process_output(out)

	assert.Equal(t, []float32{1, 2, 0, 0, 0, 0}, out,
		"underflow produces exactly zero samples, never stale data")
}

func Test_install_dsp_NilRemovesWithoutOldProcessor(t *testing.T) {
	var rt = bench_runtime(4)

	var old = rt.install_dsp(nil, nil, nil)
	assert.Nil(t, old)

	rt.process_input(make([]float32, 8))
	assert.Equal(t, rt.generation, rt.observed_gen.Load(),
		"the callback observes the installed generation")
}
