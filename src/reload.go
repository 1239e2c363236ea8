package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Hot reload: watch, debounce, rebuild, swap.
 *
 * Description: Watches the engine source subtree.  A change starts a
 *		reload pass: invalidate the sidecar, discovery build,
 *		extract, full build, load, construct, swap.  A newer
 *		change cancels the in-flight pass at the next
 *		checkpoint (or kills its subprocess) and starts over.
 *		Two passes are never concurrent.
 *
 *		Failure at any phase aborts the pass; the previous DSP
 *		keeps running and the diagnostic goes out as a reload
 *		notification.  Cancellation can never leave the audio
 *		in a torn state: nothing visible changes until the swap
 *		phase, and the swap itself is atomic (see host.go).
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type ReloadSession struct {
	cfg   *Config
	cache *sidecar_cache
	host  *Host

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	cancel    context.CancelFunc /* cancels the in-flight pass, nil when idle */
	pass_done chan struct{}      /* closed when the in-flight pass returns */

	shutdown <-chan struct{}
	wg       sync.WaitGroup
}

type ReloadEvent struct {
	Stage string `json:"stage"` /* build, extract, load, swap */
	OK    bool   `json:"ok"`
	Diag  *Diag  `json:"diagnostic,omitempty"`
}

/*------------------------------------------------------------------
 *
 * Name:	start_reload_session
 *
 * Purpose:	Set up the file watcher and the rebuild machinery.
 *
 * Description:	fsnotify does not recurse, so every directory under the
 *		engine subtree is added individually, and newly created
 *		directories are added as they appear.
 *
 *------------------------------------------------------------------*/

func start_reload_session(cfg *Config, cache *sidecar_cache, host *Host, shutdown <-chan struct{}) (*ReloadSession, error) {
	var watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	var s = &ReloadSession{
		cfg:      cfg,
		cache:    cache,
		host:     host,
		watcher:  watcher,
		shutdown: shutdown,
	}

	if err := s.watch_tree(cfg.EngineDir); err != nil {
		watcher.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.watch_loop()

	log_sub("reload").Info("watching for changes", "dir", cfg.EngineDir)

	return s, nil
}

func (s *ReloadSession) watch_tree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return s.watcher.Add(path)
		}
		return nil
	})
}

// interesting reports whether a change to this path should trigger a
// rebuild.  Editor droppings and hidden files are ignored.
func interesting(path string) bool {
	var base = filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	return true
}

func (s *ReloadSession) watch_loop() {
	defer s.wg.Done()

	var debounce = time.Duration(s.cfg.DebounceMS) * time.Millisecond
	var timer = time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	var pending bool

	for {
		select {
		case <-s.shutdown:
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !interesting(ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				/* A new directory needs its own watch. */
				s.watch_tree(ev.Name)
			}
			if !pending {
				pending = true
			} else if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log_sub("reload").Warn("watcher error", "err", err)

		case <-timer.C:
			if pending {
				pending = false
				s.trigger()
			}
		}
	}
}

/*------------------------------------------------------------------
 *
 * Name:	trigger
 *
 * Purpose:	Start a reload pass, superseding any in-flight one.
 *
 * Description:	The previous pass is cancelled and waited for before
 *		the new one starts; reload passes are strictly
 *		sequential.  The wait is bounded by the phases' own
 *		timeouts plus the process-group kill on cancel.
 *
 *------------------------------------------------------------------*/

func (s *ReloadSession) trigger() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	var prev_done = s.pass_done

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan struct{})
	s.cancel = cancel
	s.pass_done = done
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)

		if prev_done != nil {
			<-prev_done
		}
		select {
		case <-s.shutdown:
			return
		default:
		}

		s.run_pass(ctx)

		s.mu.Lock()
		if s.pass_done == done {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()
}

func (s *ReloadSession) notify(stage string, ok bool, diag *Diag) {
	s.host.send_notification("reload", ReloadEvent{Stage: stage, OK: ok, Diag: diag})

	var lg = log_sub("reload")
	if ok {
		lg.Info("reload "+stage+" ok")
	} else if diag != nil && diag.Kind == ParameterExtractionCancelled {
		lg.Debug("reload "+stage+" superseded")
	} else {
		lg.Error("reload "+stage+" failed", "diag", diag)
	}
}

func (s *ReloadSession) fail(stage string, err error) {
	var fallback = PluginBuildFailed
	switch stage {
	case "extract":
		fallback = ParameterExtractionFailed
	case "load":
		fallback = PluginLoadFailed
	}
	s.notify(stage, false, diag_from(err, fallback, stage+"-failed"))
}

/*------------------------------------------------------------------
 *
 * Name:	run_pass
 *
 * Purpose:	One complete reload: build -> extract -> load -> swap.
 *
 * Description:	The cancellation token is checked between phases; the
 *		build and extraction subprocesses die with it.  Until
 *		the swap phase nothing the audio thread can see has
 *		changed, so aborting anywhere earlier leaves the old
 *		DSP running untouched.
 *
 *------------------------------------------------------------------*/

func (s *ReloadSession) run_pass(ctx context.Context) {
	var start = time.Now()

	var cancelled = func(stage string) bool {
		if ctx.Err() == nil {
			return false
		}
		s.notify(stage, false, new_diag(ParameterExtractionCancelled, "cancelled", "superseded by a newer change"))
		return true
	}

	/* Phase: build (discovery) + extract, via the discovery pipeline. */
	s.cache.invalidate()

	specs, catalog, err := discover_parameters(ctx, s.cfg, s.cache)
	if cancelled("build") {
		return
	}
	if err != nil {
		s.fail("build", err)
		return
	}
	s.notify("extract", true, nil)

	/* Phase: full build. */
	if err := run_build(ctx, s.cfg, false); err != nil {
		if cancelled("build") {
			return
		}
		s.fail("build", err)
		return
	}
	s.notify("build", true, nil)

	if cancelled("load") {
		return
	}

	/* Phase: load.  The full dylib is opened but its metadata comes
	   from the discovery extraction, not from running its exports. */
	loader, load_err := OpenPlugin(s.cfg.DylibPath())
	if load_err != nil {
		s.fail("load", load_err)
		return
	}
	loader.Specs = specs
	loader.Catalog = catalog

	var proc *Processor
	if loader.HasProcessor() {
		var rt_rate float32 = 48000
		var rt_block = DEFAULT_BLOCK_SIZE
		s.host.mu.Lock()
		if s.host.rt != nil {
			rt_rate = float32(s.host.rt.SampleRate())
			rt_block = s.host.rt.BlockSize()
		}
		s.host.mu.Unlock()

		proc, load_err = loader.NewProcessor(rt_rate, uint32(rt_block))
		if load_err != nil {
			loader.Close()
			s.fail("load", load_err)
			return
		}
	}
	s.notify("load", true, nil)

	if cancelled("swap") {
		/* The new generation was never installed; tear it down. */
		if proc != nil {
			proc.Drop()
		}
		loader.Close()
		return
	}

	/* Phase: swap.  From here on there is no cancellation. */
	s.host.ApplyReload(loader, proc)
	s.notify("swap", true, nil)

	log_sub("reload").Info("reload complete", "took", time.Since(start).Round(time.Millisecond), "params", len(specs))
}

func (s *ReloadSession) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.watcher.Close()
	s.wg.Wait()
}
