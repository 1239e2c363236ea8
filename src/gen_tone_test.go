package wavecraft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_input_source_Classification(t *testing.T) {
	assert.True(t, is_device_source(""))
	assert.True(t, is_device_source("default"))
	assert.True(t, is_device_source("Scarlett"))
	assert.False(t, is_device_source("tone"))
	assert.False(t, is_device_source("tone:880"))
	assert.False(t, is_device_source("silence"))
}

func Test_tone_frequency(t *testing.T) {
	assert.Equal(t, 440.0, tone_frequency("tone"))
	assert.Equal(t, 880.0, tone_frequency("tone:880"))
	assert.Equal(t, 440.0, tone_frequency("tone:nonsense"))
	assert.Equal(t, 440.0, tone_frequency("tone:-20"))
}

func Test_tone_generator_FeedsProcessingChain(t *testing.T) {
	var rt = bench_runtime(128)
	rt.sample_rate = 48000

	var g = new_tone_generator("tone:1000", rt)
	g.start()
	defer g.stop()

	/* Two blocks is plenty to see the chain move. */
	var frame = <-rt.meters.frames
	assert.Greater(t, frame.Peak[0], float32(0.1), "the sine is audible in the meters")
	assert.Equal(t, frame.Peak[0], frame.Peak[1], "the generator is dual mono")
}
