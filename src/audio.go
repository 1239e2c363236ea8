package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Interface to the audio device commonly called a
 *		"sound card" for historical reasons.
 *
 * Description: Paired capture and playback streams over PortAudio,
 *		connected by the SPSC ring in ring_buffer.go.  The
 *		input callback drives the user DSP; the output callback
 *		only drains the ring.
 *
 *		Everything either callback touches is allocated before
 *		the streams start and moved into the callback closures.
 *		The callbacks run on threads owned by the host audio
 *		system and must never suspend, block or allocate.
 *
 *		Input callback sequence:
 *		  (1) deinterleave into per-channel scratch
 *		  (2) read the parameter bridge once
 *		  (3) invoke the FFI processor
 *		  (4) compute meters, publish the frame
 *		  (5) interleave into the stereo scratch
 *		  (6) push into the ring
 *
 *		Output callback: drain up to len(data) from the ring,
 *		zero the remainder.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

const DEFAULT_BLOCK_SIZE = 512 /* frames; power of two in the 128..1024 range */
const NUM_CHANNELS = 2

// active_dsp is what the input callback reads through one atomic pointer
// load per block: the processor plus the pre-resolved bridge slots.  A
// hot reload builds a fresh one off-thread and swaps it in whole.
type active_dsp struct {
	proc       *Processor
	slots      []dsp_param_slot
	generation uint64
}

// dsp_param_slot pairs a bridge cell with the parameter's discovery
// index.  last is audio-thread-local: values are only forwarded to the
// DSP when the bit pattern actually changed.
type dsp_param_slot struct {
	index uint32
	cell  *atomic.Uint32
	last  uint32
}

type AudioRuntime struct {
	block_size  int
	sample_rate float64

	dsp          atomic.Pointer[active_dsp]
	observed_gen atomic.Uint64 /* generation the callback last finished a block with */
	generation   uint64        /* swap side only */

	ring   *spsc_ring
	meters *meter_tap

	/* Pre-allocated scratch, audio thread only. */
	deinter   [NUM_CHANNELS][]float32
	chan_refs [NUM_CHANNELS][]float32
	inter     []float32

	frame_counter   atomic.Uint64 /* incremented by the audio thread, read by audio_stats */
	callback_errors atomic.Uint64 /* blocks skipped for bad shape */

	in_stream  *portaudio.Stream
	out_stream *portaudio.Stream
	generator  *tone_generator /* non-nil when the input is synthetic */

	input_only bool
	duplex     bool /* playback stream present; the interleave+ring step runs */
	running    atomic.Bool
}

/*------------------------------------------------------------------
 *
 * Name:	audio_start
 *
 * Purpose:	Open the audio device(s) and start the streams.
 *
 * Inputs:	cfg	- runtime configuration (block size hint, input
 *			  source, degraded-mode policy).
 *
 *		meters	- where the input callback publishes frames.
 *
 *		status	- transitions are pushed here as they happen.
 *
 * Returns:	The running AudioRuntime.  With no usable output device
 *		the result depends on policy: strict mode returns an
 *		error, degraded mode returns an input-only runtime.
 *
 * Description:	The plugin is driven at the capture rate.  The playback
 *		stream is requested at the same rate and the host audio
 *		system is trusted to resample at the output boundary if
 *		the device disagrees.
 *
 *----------------------------------------------------------------*/

func audio_start(cfg *Config, meters *meter_tap, status *status_cell) (*AudioRuntime, error) {
	status.set(AudioStatus{State: StateInitializing})

	if err := portaudio.Initialize(); err != nil {
		var d = new_diag(DeviceEnumerationFailed, "host-init", "portaudio: %v", err)
		status.set(AudioStatus{State: StateFailed, Diag: d})
		return nil, d
	}

	var block = cfg.BlockSizeHint
	if block < 128 || block > 1024 {
		block = DEFAULT_BLOCK_SIZE
	}

	var rt = &AudioRuntime{
		block_size: block,
		meters:     meters,
		ring:       new_spsc_ring(block, NUM_CHANNELS),
		inter:      make([]float32, block*NUM_CHANNELS),
	}
	for ch := 0; ch < NUM_CHANNELS; ch++ {
		rt.deinter[ch] = make([]float32, block)
	}

	var in_dev, out_dev, dev_err = select_devices(cfg)
	if dev_err != nil {
		portaudio.Terminate()
		status.set(AudioStatus{State: StateFailed, Diag: diag_from(dev_err, DeviceEnumerationFailed, "device-missing")})
		return nil, dev_err
	}

	if in_dev == nil && is_device_source(cfg.InputSource) {
		portaudio.Terminate()
		var d = new_diag(DeviceEnumerationFailed, "device-missing", "no input device found").
			with_suggestion("plug in a microphone, or run with --input tone")
		status.set(AudioStatus{State: StateFailed, Diag: d})
		return nil, d
	}

	/* Input side: a real capture device, or the built-in generator. */

	rt.sample_rate = 48000
	if in_dev != nil {
		rt.sample_rate = in_dev.DefaultSampleRate
	}

	if in_dev != nil {
		var in_params = portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   in_dev,
				Channels: NUM_CHANNELS,
				Latency:  in_dev.DefaultLowInputLatency,
			},
			SampleRate:      rt.sample_rate,
			FramesPerBuffer: block,
		}

		var in_stream, in_err = portaudio.OpenStream(in_params, rt.process_input)
		if in_err != nil {
			portaudio.Terminate()
			var d = new_diag(DeviceConfigUnsupported, "format-unsupported",
				"capture stream %s: %v", in_dev.Name, in_err)
			status.set(AudioStatus{State: StateFailed, Diag: d})
			return nil, d
		}
		rt.in_stream = in_stream
	} else {
		rt.generator = new_tone_generator(cfg.InputSource, rt)
	}

	/* Output side.  Absence is where strict vs degraded policy bites. */

	var out_diag *Diag
	if out_dev == nil {
		out_diag = new_diag(DeviceEnumerationFailed, "device-missing", "no output device found").
			with_suggestion("open system audio settings and pick a playback device")
	} else {
		var out_params = portaudio.StreamParameters{
			Output: portaudio.StreamDeviceParameters{
				Device:   out_dev,
				Channels: NUM_CHANNELS,
				Latency:  out_dev.DefaultLowOutputLatency,
			},
			SampleRate:      rt.sample_rate,
			FramesPerBuffer: block,
		}

		var out_stream, out_err = portaudio.OpenStream(out_params, rt.process_output)
		if out_err != nil {
			out_diag = new_diag(DeviceConfigUnsupported, "format-unsupported",
				"playback stream %s: %v", out_dev.Name, out_err)
		} else {
			rt.out_stream = out_stream
			rt.duplex = true
		}
	}

	if out_diag != nil && !cfg.AllowMissingOutput {
		rt.close_streams()
		portaudio.Terminate()
		status.set(AudioStatus{State: StateFailed, Diag: out_diag})
		return nil, out_diag
	}
	rt.input_only = out_diag != nil

	/* Let the user know what is going on. */

	text_color_set(DW_COLOR_INFO)
	if in_dev != nil {
		dw_printf("Audio input device for capture: %s (%d channels, %.0f/sec)\n",
			in_dev.Name, NUM_CHANNELS, rt.sample_rate)
	} else {
		dw_printf("Audio input: built-in %s source at %.0f/sec\n", cfg.InputSource, rt.sample_rate)
	}
	if out_dev != nil && rt.out_stream != nil {
		dw_printf("Audio output device for playback: %s\n", out_dev.Name)
	}

	if err := rt.start_streams(); err != nil {
		rt.close_streams()
		portaudio.Terminate()
		var d = new_diag(StreamStartFailed, "stream-start", "%v", err)
		status.set(AudioStatus{State: StateFailed, Diag: d})
		return nil, d
	}
	rt.running.Store(true)

	if rt.input_only {
		status.set(AudioStatus{State: StateRunningInputOnly, Diag: out_diag})
	} else {
		status.set(AudioStatus{State: StateRunningFullDuplex})
	}

	return rt, nil
}

func select_devices(cfg *Config) (in *portaudio.DeviceInfo, out *portaudio.DeviceInfo, err error) {
	if !is_device_source(cfg.InputSource) {
		/* tone:NNN or silence; no capture device wanted */
		in = nil
	} else {
		var in_err error
		in, in_err = portaudio.DefaultInputDevice()
		if in_err != nil {
			in = nil /* audio_start reports the missing capture device as a failure */
		}
		if in != nil && is_device_source(cfg.InputSource) {
			if named, find_err := find_device_by_name(cfg.InputSource, true); find_err == nil {
				in = named
			}
		}
	}

	out, err = portaudio.DefaultOutputDevice()
	if err != nil {
		out = nil
		err = nil /* policy decision happens in audio_start */
	}

	return in, out, nil
}

func find_device_by_name(name string, want_input bool) (*portaudio.DeviceInfo, error) {
	var devices, err = portaudio.Devices()
	if err != nil {
		return nil, new_diag(DeviceEnumerationFailed, "host-init", "portaudio devices: %v", err)
	}

	for _, d := range devices {
		if !contains_fold(d.Name, name) {
			continue
		}
		if want_input && d.MaxInputChannels > 0 {
			return d, nil
		}
		if !want_input && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}

	return nil, new_diag(DeviceEnumerationFailed, "device-missing", "no device matching %q", name)
}

func (rt *AudioRuntime) start_streams() error {
	/* Output first so the first processed blocks have somewhere to go. */
	if rt.out_stream != nil {
		if err := rt.out_stream.Start(); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
	if rt.in_stream != nil {
		if err := rt.in_stream.Start(); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	if rt.generator != nil {
		rt.generator.start()
	}
	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	process_input
 *
 * Purpose:	Capture callback: one block of interleaved samples in,
 *		processed samples into the ring, one meter frame out.
 *
 * Description:	Runs on the audio thread.  Zero heap allocations.
 *
 *----------------------------------------------------------------*/

func (rt *AudioRuntime) process_input(in []float32) {
	var n = len(in) / NUM_CHANNELS
	if n == 0 || n > rt.block_size {
		rt.callback_errors.Add(1)
		return
	}

	for i := 0; i < n; i++ {
		rt.deinter[0][i] = in[i*2]
		rt.deinter[1][i] = in[i*2+1]
	}
	rt.chan_refs[0] = rt.deinter[0][:n]
	rt.chan_refs[1] = rt.deinter[1][:n]

	var dsp = rt.dsp.Load()
	if dsp != nil && dsp.proc != nil {
		/* One pass over the bridge; only changed bit patterns are
		   forwarded into the DSP. */
		for i := range dsp.slots {
			var s = &dsp.slots[i]
			var bits = s.cell.Load()
			if bits != s.last {
				s.last = bits
				dsp.proc.SetParameter(s.index, math.Float32frombits(bits))
			}
		}

		dsp.proc.Process(rt.chan_refs[:])
	}
	if dsp != nil {
		rt.observed_gen.Store(dsp.generation)
	}

	var frame = MeterFrame{
		Counter:    rt.frame_counter.Add(1),
		SampleRate: float32(rt.sample_rate),
	}
	compute_meters(rt.chan_refs[:], &frame)
	rt.meters.publish(frame)

	if rt.duplex {
		for i := 0; i < n; i++ {
			rt.inter[i*2] = rt.deinter[0][i]
			rt.inter[i*2+1] = rt.deinter[1][i]
		}
		rt.ring.push(rt.inter[:n*NUM_CHANNELS])
	}
}

func (rt *AudioRuntime) process_output(out []float32) {
	var got = rt.ring.pop(out)
	for i := got; i < len(out); i++ {
		out[i] = 0
	}
}

/*------------------------------------------------------------------
 *
 * Name:	install_dsp
 *
 * Purpose:	Swap a new processor into the running callback.
 *
 * Inputs:	proc	- fully constructed instance, or nil to remove.
 *		specs	- the spec list the bridge was built from; the
 *			  slot order defines the discovery indexes.
 *		bridge	- the current parameter bridge.
 *
 * Returns:	The previous processor, already guaranteed unobserved
 *		by the callback, ready to be dropped by the caller.
 *
 * Description:	The new (processor, slots) cell is built completely
 *		before the swap; the callback sees either the old cell
 *		or the new one, never a partially constructed state.
 *		set_sample_rate runs before the cell becomes visible,
 *		so it always precedes the first process() call.
 *
 *		After the pointer swap we wait until the callback has
 *		finished a block with the new generation (or a timeout
 *		passes - the stream may be stopped) before handing the
 *		predecessor back for dropping.
 *
 *----------------------------------------------------------------*/

func (rt *AudioRuntime) install_dsp(proc *Processor, specs []ParameterSpec, bridge *ParamBridge) *Processor {
	var next *active_dsp

	rt.generation++
	if proc != nil {
		proc.SetSampleRate(float32(rt.sample_rate))

		var slots = make([]dsp_param_slot, 0, len(specs))
		for i, spec := range specs {
			var cell = bridge.slot(spec.ID)
			if cell == nil {
				continue
			}
			slots = append(slots, dsp_param_slot{
				index: uint32(i),
				cell:  cell,
				/* A fresh instance starts at the spec defaults, so
				   seed last with the default bits; anything the
				   user changed is forwarded on the first block. */
				last: math.Float32bits(spec.Default),
			})
		}
		next = &active_dsp{proc: proc, slots: slots, generation: rt.generation}
	} else {
		next = &active_dsp{generation: rt.generation}
	}

	var prev = rt.dsp.Swap(next)

	if prev == nil || prev.proc == nil {
		return nil
	}

	/* Wait for the callback to observe the successor at least once. */
	if rt.running.Load() && (rt.in_stream != nil || rt.generator != nil) {
		var deadline = time.Now().Add(500 * time.Millisecond)
		for rt.observed_gen.Load() < next.generation && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	return prev.proc
}

// SampleRate the plugin is being driven at.
func (rt *AudioRuntime) SampleRate() float64 {
	return rt.sample_rate
}

func (rt *AudioRuntime) BlockSize() int {
	return rt.block_size
}

// PanicCount of the currently active processor, for diagnostics.
func (rt *AudioRuntime) PanicCount() uint64 {
	var dsp = rt.dsp.Load()
	if dsp == nil || dsp.proc == nil {
		return 0
	}
	return dsp.proc.PanicCount()
}

func (rt *AudioRuntime) close_streams() {
	if rt.generator != nil {
		rt.generator.stop()
	}
	if rt.in_stream != nil {
		rt.in_stream.Stop()
		rt.in_stream.Close()
		rt.in_stream = nil
	}
	if rt.out_stream != nil {
		rt.out_stream.Stop()
		rt.out_stream.Close()
		rt.out_stream = nil
	}
}

/*------------------------------------------------------------------
 *
 * Name:	Stop
 *
 * Purpose:	Stop the callbacks and release the audio device(s).
 *
 * Description:	Does not drop the active processor; teardown order is
 *		owned by the supervisor (audio first, loader last).
 *
 *----------------------------------------------------------------*/

func (rt *AudioRuntime) Stop() {
	if !rt.running.Swap(false) {
		return
	}
	rt.close_streams()
	portaudio.Terminate()
}
