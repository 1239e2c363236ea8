package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Print statistics for the audio streams.
 *
 * Description: A common complaint with audio tooling is that there is
 *		no indication anything is flowing until something is
 *		audibly wrong.  With a nonzero interval this prints a
 *		line like
 *
 *		AUDIO: rate approx. 48.0 k, 93.7 blocks/sec, 0 skipped, 0 dsp panics, input peak 0.31
 *
 *		every interval seconds.  It has been a useful
 *		troubleshooting tool on machines where the capture
 *		device quietly delivers nothing but zeros.
 *
 *		Everything here reads atomics or the latest coalesced
 *		meter frame; nothing touches the audio callbacks.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"sync/atomic"
	"time"
)

type audio_stats_reporter struct {
	rt       *AudioRuntime
	interval int /* seconds; 0 disables */

	latest_peak atomic.Uint32 /* float32 bits, fed by the meter forwarder */
}

func new_audio_stats(rt *AudioRuntime, interval int) *audio_stats_reporter {
	return &audio_stats_reporter{rt: rt, interval: interval}
}

// note_frame is hooked into the meter forwarder's delivery path.
func (s *audio_stats_reporter) note_frame(frame MeterFrame) {
	var peak = frame.Peak[0]
	if frame.Peak[1] > peak {
		peak = frame.Peak[1]
	}
	s.latest_peak.Store(math.Float32bits(peak))
}

func (s *audio_stats_reporter) run(shutdown <-chan struct{}) {
	if s.interval <= 0 {
		return
	}

	var ticker = time.NewTicker(time.Duration(s.interval) * time.Second)
	defer ticker.Stop()

	var last_blocks = s.rt.frame_counter.Load()
	var last_skipped = s.rt.callback_errors.Load()

	/* Suppress the first report; it never covers a full interval. */
	var first = true

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			var blocks = s.rt.frame_counter.Load()
			var skipped = s.rt.callback_errors.Load()

			if !first {
				var block_rate = float64(blocks-last_blocks) / float64(s.interval)
				var sample_rate = block_rate * float64(s.rt.block_size) / 1000.0

				text_color_set(DW_COLOR_DEBUG)
				dw_printf("AUDIO: rate approx. %.1f k, %.1f blocks/sec, %d skipped, %d dsp panics, input peak %.2f\n",
					sample_rate, block_rate, skipped-last_skipped,
					s.rt.PanicCount(), math.Float32frombits(s.latest_peak.Load()))
				text_color_set(DW_COLOR_INFO)
			}
			first = false
			last_blocks = blocks
			last_skipped = skipped
		}
	}
}
