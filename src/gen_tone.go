package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Built-in input sources: a sine generator and silence.
 *
 * Description: When the user asks for it (--input tone or silence)
 *		the runtime synthesizes input blocks at the block
 *		cadence and feeds them through the same processing
 *		chain as microphone audio.  Handy for demos, CI boxes
 *		and headless containers.  A missing capture device is
 *		not replaced by a generator; audio_start fails instead.
 *
 *		Source syntax, from the --input flag:
 *
 *			default		system capture device
 *			<substring>	capture device matching name
 *			tone		440 Hz sine
 *			tone:880	sine at the given frequency
 *			silence		all-zero input
 *
 *------------------------------------------------------------------*/

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const INPUT_DEFAULT = "default"
const INPUT_SILENCE = "silence"
const INPUT_TONE_PREFIX = "tone"

const tone_default_freq = 440.0
const tone_amplitude = 0.5

// is_device_source reports whether the --input value names a capture
// device rather than a synthetic source.
func is_device_source(source string) bool {
	if source == "" || source == INPUT_DEFAULT {
		return true
	}
	return source != INPUT_SILENCE && !strings.HasPrefix(source, INPUT_TONE_PREFIX)
}

func contains_fold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func tone_frequency(source string) float64 {
	var _, spec, found = strings.Cut(source, ":")
	if !found {
		return tone_default_freq
	}

	var hz, err = strconv.ParseFloat(spec, 64)
	if err != nil || hz <= 0 {
		return tone_default_freq
	}
	return hz
}

type tone_generator struct {
	rt      *AudioRuntime
	silence bool
	freq    float64
	done    chan struct{}
}

func new_tone_generator(source string, rt *AudioRuntime) *tone_generator {
	return &tone_generator{
		rt:      rt,
		silence: source == INPUT_SILENCE,
		freq:    tone_frequency(source),
		done:    make(chan struct{}),
	}
}

/*------------------------------------------------------------------
 *
 * Name:	start
 *
 * Purpose:	Produce interleaved blocks at real-time cadence and
 *		push them through process_input.
 *
 * Description:	Runs on its own goroutine, not an audio-system thread,
 *		so the usual no-allocation rule is a courtesy here -
 *		the block buffer is still reused to keep process_input
 *		honest.
 *
 *------------------------------------------------------------------*/

func (g *tone_generator) start() {
	go func() {
		var block = g.rt.block_size
		var period = time.Duration(float64(block) / g.rt.sample_rate * float64(time.Second))
		var ticker = time.NewTicker(period)
		defer ticker.Stop()

		var buf = make([]float32, block*NUM_CHANNELS)
		var phase float64
		var step = 2 * math.Pi * g.freq / g.rt.sample_rate

		for {
			select {
			case <-g.done:
				return
			case <-ticker.C:
				if !g.silence {
					for i := 0; i < block; i++ {
						var s = float32(tone_amplitude * math.Sin(phase))
						buf[i*2] = s
						buf[i*2+1] = s
						phase += step
						if phase > 2*math.Pi {
							phase -= 2 * math.Pi
						}
					}
				}
				g.rt.process_input(buf)
			}
		}
	}()
}

func (g *tone_generator) stop() {
	select {
	case <-g.done:
	default:
		close(g.done)
	}
}
