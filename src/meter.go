package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Per-block level meters and their delivery to the UI.
 *
 * Description: After the user DSP returns, the input callback computes
 *		peak and RMS per channel and publishes a MeterFrame.
 *		Frames are stamped with a monotonic counter; consumers
 *		may observe gaps (dropped frames) but never reordering.
 *
 *		Publication uses a fixed-capacity channel with a
 *		non-blocking send.  A full channel drops the frame,
 *		which is fine: meters are a display aid, and the
 *		forwarder coalesces to a human rate anyway.
 *
 *------------------------------------------------------------------*/

import (
	"math"
	"time"
)

const METER_CHANNELS = 2

type MeterFrame struct {
	Peak       [METER_CHANNELS]float32 `json:"peak"`
	RMS        [METER_CHANNELS]float32 `json:"rms"`
	Counter    uint64                  `json:"counter"`
	SampleRate float32                 `json:"sample_rate"`
}

/*------------------------------------------------------------------
 *
 * Name:	compute_meters
 *
 * Purpose:	Fill in peak and RMS for one processed block.
 *
 * Description:	Runs on the audio thread.  No allocation, no calls
 *		that could block.  math.Sqrt on a float64 is fine.
 *
 *------------------------------------------------------------------*/

func compute_meters(channels [][]float32, frame *MeterFrame) {
	for ch := 0; ch < len(channels) && ch < METER_CHANNELS; ch++ {
		var peak float32
		var sum float64

		for _, s := range channels[ch] {
			var abs = s
			if abs < 0 {
				abs = -abs
			}
			if abs > peak {
				peak = abs
			}
			sum += float64(s) * float64(s)
		}

		frame.Peak[ch] = peak
		if n := len(channels[ch]); n > 0 {
			frame.RMS[ch] = float32(math.Sqrt(sum / float64(n)))
		} else {
			frame.RMS[ch] = 0
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	meter_tap
 *
 * Purpose:	Hand meter frames from the audio thread to the IPC side.
 *
 * Description:	The audio thread calls publish once per block; the
 *		forwarder goroutine drains the channel, remembers the
 *		latest frame, and pushes it to the UI at a visible rate
 *		(every meter_forward_interval).  If the channel backs
 *		up the audio thread silently drops frames rather than
 *		waiting.
 *
 *------------------------------------------------------------------*/

const meter_chan_capacity = 64
const meter_forward_interval = 33 * time.Millisecond /* ~30 Hz visible updates */

type meter_tap struct {
	frames  chan MeterFrame
	dropped uint64 /* audio thread only; not part of the audio_stats report */
}

func new_meter_tap() *meter_tap {
	return &meter_tap{frames: make(chan MeterFrame, meter_chan_capacity)}
}

// publish is called from the audio thread.  Non-blocking; a MeterFrame is
// a plain value so the send does not allocate.
func (m *meter_tap) publish(frame MeterFrame) {
	select {
	case m.frames <- frame:
	default:
		m.dropped++
	}
}

/*------------------------------------------------------------------
 *
 * Name:	run_meter_forwarder
 *
 * Purpose:	Coalesce meter frames and deliver them downstream.
 *
 * Inputs:	deliver	- called at most every meter_forward_interval
 *			  with the newest frame since the last call.
 *			  Counters handed to deliver are strictly
 *			  increasing.
 *
 * Description:	Runs as a goroutine on the cooperative scheduler.
 *		Returns when the tap channel is closed or the shutdown
 *		channel fires.
 *
 *------------------------------------------------------------------*/

func (m *meter_tap) run_meter_forwarder(shutdown <-chan struct{}, deliver func(MeterFrame)) {
	var ticker = time.NewTicker(meter_forward_interval)
	defer ticker.Stop()

	var latest MeterFrame
	var have bool
	var last_sent uint64

	for {
		select {
		case <-shutdown:
			return
		case frame, ok := <-m.frames:
			if !ok {
				return
			}
			if frame.Counter > latest.Counter || !have {
				latest = frame
				have = true
			}
		case <-ticker.C:
			if have && latest.Counter > last_sent {
				deliver(latest)
				last_sent = latest.Counter
			}
		}
	}
}
