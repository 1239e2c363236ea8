package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Dev-server host: the shared state every subsystem
 *		meets at.
 *
 * Description: Owns the current parameter specs, the store (slow
 *		path), the bridge (fast path), the plugin loader and
 *		the audio runtime handle, and fans notifications out to
 *		the IPC server.  The hot-reload orchestrator replaces
 *		the whole (loader, specs, bridge, store) unit through
 *		ApplyReload.
 *
 *------------------------------------------------------------------*/

import (
	"sync"
)

type Host struct {
	mu      sync.Mutex
	specs   []ParameterSpec
	by_id   map[string]*ParameterSpec
	catalog []ProcessorEntry
	store   *ParamStore
	bridge  *ParamBridge
	loader  *PluginLoader
	rt      *AudioRuntime /* nil until phase 7, or in degraded startup */

	meters *meter_tap
	status *status_cell

	frame_mu     sync.Mutex
	latest_frame *MeterFrame

	/* notify is installed by the IPC server; nil-safe before that. */
	notify_mu sync.Mutex
	notify    func(method string, params any)
}

func NewHost(specs []ParameterSpec, catalog []ProcessorEntry, status *status_cell) *Host {
	var h = &Host{
		meters: new_meter_tap(),
		status: status,
	}
	h.adopt_specs(specs, catalog, NewParamStore(specs), NewParamBridge(specs))

	status.subscribe(func(s AudioStatus) {
		h.send_notification("audio_status", s)
	})

	return h
}

func (h *Host) adopt_specs(specs []ParameterSpec, catalog []ProcessorEntry, store *ParamStore, bridge *ParamBridge) {
	var by_id = make(map[string]*ParameterSpec, len(specs))
	for i := range specs {
		by_id[specs[i].ID] = &specs[i]
	}

	h.specs = specs
	h.by_id = by_id
	h.catalog = catalog
	h.store = store
	h.bridge = bridge
}

func (h *Host) Meters() *meter_tap {
	return h.meters
}

func (h *Host) Status() *status_cell {
	return h.status
}

func (h *Host) set_notifier(fn func(method string, params any)) {
	h.notify_mu.Lock()
	h.notify = fn
	h.notify_mu.Unlock()
}

func (h *Host) send_notification(method string, params any) {
	h.notify_mu.Lock()
	var fn = h.notify
	h.notify_mu.Unlock()

	if fn != nil {
		fn(method, params)
	}
}

func (h *Host) ListParameters() []ParameterSpec {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out = make([]ParameterSpec, len(h.specs))
	copy(out, h.specs)
	return out
}

func (h *Host) GetParameter(id string) (float32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.store.Get(id)
}

/*------------------------------------------------------------------
 *
 * Name:	SetParameter
 *
 * Purpose:	Apply one parameter write from any source.
 *
 * Returns:	The stored (possibly clamped) value, or ok=false for an
 *		unknown id.
 *
 * Description:	Out-of-range values are clamped, not rejected; a UI
 *		slider can race with range tightening after a reload.
 *		The store is written before the bridge so a concurrent
 *		reader sees the old value rather than an impossible
 *		intermediate.  Every successful write is broadcast as
 *		parameter_changed, whatever its source.
 *
 *------------------------------------------------------------------*/

func (h *Host) SetParameter(id string, value float32) (float32, bool) {
	h.mu.Lock()
	var spec = h.by_id[id]
	if spec == nil {
		h.mu.Unlock()
		return 0, false
	}

	var clamped = spec.Range.Clamp(value)
	h.store.Set(id, clamped)
	h.bridge.Write(id, clamped)
	h.mu.Unlock()

	h.send_notification("parameter_changed", ParamValue{ID: id, Value: clamped})

	return clamped, true
}

func (h *Host) BridgeSnapshot() []ParamValue {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge.Snapshot()
}

/* Meter plumbing: the forwarder calls note_meter_frame at the visible
   rate; get_meter_frame answers from the remembered latest. */

func (h *Host) note_meter_frame(frame MeterFrame) {
	h.frame_mu.Lock()
	h.latest_frame = &frame
	h.frame_mu.Unlock()

	h.send_notification("meter_update", map[string]any{"frame": frame})
}

func (h *Host) LatestMeterFrame() *MeterFrame {
	h.frame_mu.Lock()
	defer h.frame_mu.Unlock()
	return h.latest_frame
}

func (h *Host) attach_audio(rt *AudioRuntime) {
	h.mu.Lock()
	h.rt = rt
	h.mu.Unlock()
}

func (h *Host) AudioRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rt != nil
}

func (h *Host) attach_loader(l *PluginLoader) {
	h.mu.Lock()
	h.loader = l
	h.mu.Unlock()
}

/*------------------------------------------------------------------
 *
 * Name:	ApplyReload
 *
 * Purpose:	Swap in a freshly built plugin generation.
 *
 * Inputs:	loader	- new dylib, fully opened and extracted.
 *		proc	- new DSP instance, fully constructed (nil for
 *			  a meter-only plugin).
 *
 * Description:	Under the host lock the new store (user values carried
 *		over by id) and the new bridge (seeded with defaults,
 *		then the carried values) are built and the host state
 *		flips.  The processor cell is swapped after the lock is
 *		released.  The predecessor processor is dropped only
 *		after the audio callback has observed the successor
 *		(install_dsp guarantees that), and its loader is closed
 *		last of all.
 *
 *------------------------------------------------------------------*/

func (h *Host) ApplyReload(loader *PluginLoader, proc *Processor) {
	var specs = loader.Specs

	h.mu.Lock()
	var store = h.store.carry_over(specs)
	var bridge = NewParamBridge(specs)
	for _, pv := range store.All() {
		bridge.Write(pv.ID, pv.Value)
	}

	var old_loader = h.loader
	h.adopt_specs(specs, loader.Catalog, store, bridge)
	h.loader = loader

	var rt = h.rt
	h.mu.Unlock()

	var old_proc *Processor
	if rt != nil {
		old_proc = rt.install_dsp(proc, specs, bridge)
	}

	if old_proc != nil {
		old_proc.Drop()
	}
	if old_loader != nil && old_loader != loader {
		old_loader.Close()
	}
}

// stop_audio removes the DSP from the callback, drops it, and releases
// the audio device.  First step of teardown.
func (h *Host) stop_audio() {
	h.mu.Lock()
	var rt = h.rt
	h.rt = nil
	h.mu.Unlock()

	if rt == nil {
		return
	}

	var old = rt.install_dsp(nil, nil, nil)
	rt.Stop()
	if old != nil {
		old.Drop()
	}
}

// close_loader unloads the plugin dylib.  Last step of teardown; every
// processor from this loader is gone by now.
func (h *Host) close_loader() {
	h.mu.Lock()
	var loader = h.loader
	h.loader = nil
	h.mu.Unlock()

	if loader != nil {
		loader.Close()
	}
}
