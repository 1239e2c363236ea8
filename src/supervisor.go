package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Startup supervisor: phase ordering, degraded-mode
 *		policy, shutdown.
 *
 * Description: Phases, in order:
 *
 *		  1. project detection (done by the CLI front end)
 *		  2. dependency preflight
 *		  3. port preflight (binds the WebSocket listener)
 *		  4. parameter discovery -> parameter bridge
 *		  5. WebSocket IPC server
 *		  6. hot-reload session
 *		  7. audio runtime
 *		  8. UI dev-server subprocess
 *		  9. wait for shutdown
 *
 *		One watch channel signals shutdown; Ctrl-C and the UI
 *		subprocess exiting both feed it.  Teardown order is
 *		audio, WebSocket, UI subprocess, plugin loader last.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

type Supervisor struct {
	cfg    *Config
	status *status_cell

	shutdown  chan struct{}
	stop_once sync.Once
}

func NewSupervisor(cfg *Config) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		status:   new_status_cell(),
		shutdown: make(chan struct{}),
	}
}

// Shutdown is safe to call from any goroutine, any number of times.
func (sup *Supervisor) Shutdown() {
	sup.stop_once.Do(func() { close(sup.shutdown) })
}

/*------------------------------------------------------------------
 *
 * Name:	Run
 *
 * Purpose:	The whole dev session, start to finish.
 *
 * Returns:	Process exit code: 0 for Ctrl-C or a clean UI exit,
 *		nonzero for an unrecoverable startup error.
 *
 *------------------------------------------------------------------*/

func (sup *Supervisor) Run() int {
	var cfg = sup.cfg
	var lg = log_sub("supervisor")

	/* Phase 2: dependency preflight. */
	if err := preflight_dependencies(cfg); err != nil {
		return startup_failure(err)
	}

	/* Phase 3: port preflight. */
	var ln, port_err = preflight_ports(cfg)
	if port_err != nil {
		return startup_failure(port_err)
	}

	/* Ctrl-C feeds the same shutdown watch as everything else. */
	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		text_color_set(DW_COLOR_INFO)
		dw_printf("\nShutting down.\n")
		sup.Shutdown()
	}()

	/* Phase 4: parameter discovery. */
	var cache_dylib = cfg.DiscoveryDylibPath()
	if cfg.LegacyDiscovery {
		cache_dylib = cfg.DylibPath()
	}
	var cache = new_sidecar_cache(cfg.ArtifactDir, cache_dylib, cfg.EngineDir)

	var specs, catalog, disc_err = discover_parameters(context.Background(), cfg, cache)
	if disc_err != nil {
		ln.Close()
		return startup_failure(disc_err)
	}
	lg.Info("discovered parameters", "count", len(specs))

	var host = NewHost(specs, catalog, sup.status)

	/* Phase 5: IPC server. */
	var server = start_server(host, ln, sup.shutdown)
	if cfg.Announce {
		dns_sd_announce(cfg.WebsocketPort, sup.shutdown)
	}

	/* Phase 6: hot-reload session. */
	var reload, reload_err = start_reload_session(cfg, cache, host, sup.shutdown)
	if reload_err != nil {
		lg.Error("file watcher unavailable; hot reload disabled", "err", reload_err)
		reload = nil
	}

	/* Phase 7: audio runtime. */
	var audio_ok = sup.start_audio_phase(host)
	if !audio_ok && cfg.AudioStrictMode {
		if reload != nil {
			reload.Close()
		}
		server.Close()
		return 1
	}

	/* Meter delivery and periodic statistics. */
	var stats *audio_stats_reporter
	if rt := host.rt; rt != nil {
		stats = new_audio_stats(rt, cfg.StatsInterval)
		go stats.run(sup.shutdown)
	}
	go host.meters.run_meter_forwarder(sup.shutdown, func(frame MeterFrame) {
		if stats != nil {
			stats.note_frame(frame)
		}
		host.note_meter_frame(frame)
	})

	/* Phase 8: UI dev server. */
	var ui = sup.start_ui_phase(server.Addr())

	/* Phase 9: wait. */
	<-sup.shutdown

	/* Teardown: audio first, loader last. */
	host.stop_audio()
	server.Close()
	if reload != nil {
		reload.Close()
	}
	if ui != nil {
		ui.kill()
	}
	host.close_loader()

	return 0
}

func startup_failure(err error) int {
	var d = diag_from(err, DependencyMissing, "startup")

	text_color_set(DW_COLOR_ERROR)
	dw_printf("%s\n", d.Detail)
	if d.Suggest != "" {
		dw_printf("Suggestion: %s\n", d.Suggest)
	}
	text_color_set(DW_COLOR_INFO)

	return 1
}

/*------------------------------------------------------------------
 *
 * Name:	start_audio_phase
 *
 * Purpose:	Build and load the plugin, start the streams, install
 *		the DSP.
 *
 * Returns:	false when audio could not start.  In that case the
 *		status cell already says Failed; degraded mode rewrites
 *		it to Degraded and the session continues without sound.
 *
 *------------------------------------------------------------------*/

func (sup *Supervisor) start_audio_phase(host *Host) bool {
	var cfg = sup.cfg
	var lg = log_sub("audio")

	/* The full dylib may be stale or absent on first run. */
	if dylib_stale(cfg) {
		if err := run_build(context.Background(), cfg, false); err != nil {
			sup.degrade_or_fail(diag_from(err, PluginBuildFailed, "build-failed"))
			return false
		}
	}

	var loader, load_err = OpenPlugin(cfg.DylibPath())
	if load_err != nil {
		sup.degrade_or_fail(diag_from(load_err, PluginLoadFailed, "load-failed"))
		return false
	}
	loader.Specs = host.ListParameters()

	var rt, audio_err = audio_start(cfg, host.meters, sup.status)
	if audio_err != nil {
		loader.Close()
		sup.degrade_or_fail(diag_from(audio_err, StreamStartFailed, "stream-start"))
		return false
	}

	var proc *Processor
	if loader.HasProcessor() {
		var proc_err error
		proc, proc_err = loader.NewProcessor(float32(rt.SampleRate()), uint32(rt.BlockSize()))
		if proc_err != nil {
			lg.Error("processor construction failed; running meter-only", "err", proc_err)
		}
	} else {
		lg.Info("plugin has no dev processor export; running meter-only")
	}

	host.attach_loader(loader)
	host.attach_audio(rt)
	if old := rt.install_dsp(proc, loader.Specs, host.bridge); old != nil {
		old.Drop()
	}

	return true
}

// dylib_stale decides whether the full dylib needs a startup build.
func dylib_stale(cfg *Config) bool {
	var info, err = os.Stat(cfg.DylibPath())
	if err != nil {
		return true
	}
	return newest_mtime(cfg.EngineDir).After(info.ModTime())
}

// degrade_or_fail converts an audio-phase failure according to policy.
func (sup *Supervisor) degrade_or_fail(d *Diag) {
	if sup.cfg.AudioStrictMode {
		sup.status.set(AudioStatus{State: StateFailed, Diag: d})
		startup_failure(d)
		return
	}

	log_sub("audio").Warn("continuing without audio", "reason", d.Detail)
	sup.status.set(AudioStatus{State: StateDegraded, Diag: d})
}

/*------------------------------------------------------------------
 *
 * Name:	start_ui_phase
 *
 * Purpose:	Launch the UI dev server under a pty.
 *
 * Description:	A pty rather than plain pipes so the UI toolchain keeps
 *		its interactive, colored output.  The subprocess gets
 *		the WebSocket endpoint in its environment.  Its exit is
 *		treated as user-initiated shutdown.
 *
 *------------------------------------------------------------------*/

type ui_process struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

func (sup *Supervisor) start_ui_phase(ws_addr string) *ui_process {
	var cfg = sup.cfg

	if len(cfg.UICommand) == 0 {
		return nil
	}
	if _, err := os.Stat(cfg.UIDir); err != nil {
		log_sub("supervisor").Warn("no ui directory; skipping ui dev server", "dir", cfg.UIDir)
		return nil
	}

	var cmd = exec.Command(cfg.UICommand[0], cfg.UICommand[1:]...)
	cmd.Dir = cfg.UIDir
	cmd.Env = append(os.Environ(),
		"PORT="+strconv.Itoa(cfg.UIPort),
		"WAVECRAFT_WS_URL=ws://"+ws_addr+"/ws",
	)

	var ptmx, err = pty.Start(cmd)
	if err != nil {
		log_sub("supervisor").Error("could not start ui dev server", "err", err)
		return nil
	}

	go io.Copy(os.Stdout, ptmx)

	go func() {
		cmd.Wait()
		select {
		case <-sup.shutdown:
			/* we are already stopping; nothing to report */
		default:
			text_color_set(DW_COLOR_INFO)
			dw_printf("UI dev server exited; shutting down.\n")
			sup.Shutdown()
		}
	}()

	return &ui_process{cmd: cmd, ptmx: ptmx}
}

func (u *ui_process) kill() {
	if u.cmd.Process != nil {
		/* pty.Start makes the child a session (and group) leader;
		   kill the whole group so the toolchain's children go too. */
		syscall.Kill(-u.cmd.Process.Pid, syscall.SIGKILL)
	}
	u.ptmx.Close()
	u.cmd.Wait()
}
