package wavecraft

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reload_recorder struct {
	mu     sync.Mutex
	events []ReloadEvent
}

func (r *reload_recorder) record(method string, params any) {
	if method != "reload" {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, params.(ReloadEvent))
	r.mu.Unlock()
}

func (r *reload_recorder) all() []ReloadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReloadEvent(nil), r.events...)
}

func reload_fixture(t *testing.T) (*ReloadSession, *Host, *reload_recorder) {
	t.Helper()

	var root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "engine"), 0755))

	var cfg = DefaultConfig(root)
	cfg.DebounceMS = 20

	var cache = new_sidecar_cache(cfg.ArtifactDir, cfg.DiscoveryDylibPath(), cfg.EngineDir)
	var host = test_host(t)
	var recorder = &reload_recorder{}
	host.set_notifier(recorder.record)

	var session = &ReloadSession{cfg: cfg, cache: cache, host: host, shutdown: make(chan struct{})}

	return session, host, recorder
}

func Test_run_pass_BuildFailureKeepsOldState(t *testing.T) {
	var session, host, recorder = reload_fixture(t)
	session.cfg.DiscoveryBuildCommand = []string{"sh", "-c", "echo nope >&2; exit 1"}

	var before = host.ListParameters()

	session.run_pass(context.Background())

	var events = recorder.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "build", events[len(events)-1].Stage)
	assert.False(t, events[len(events)-1].OK)
	require.NotNil(t, events[len(events)-1].Diag)
	assert.Equal(t, PluginBuildFailed, events[len(events)-1].Diag.Kind)

	assert.Equal(t, before, host.ListParameters(), "the previous spec list keeps serving")
}

func Test_run_pass_CancellationBeforeSwap(t *testing.T) {
	var session, host, recorder = reload_fixture(t)
	session.cfg.DiscoveryBuildCommand = []string{"sleep", "30"}

	var before = host.ListParameters()

	var ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	var start = time.Now()
	session.run_pass(ctx)
	assert.Less(t, time.Since(start), 5*time.Second,
		"cancellation kills the build subprocess, it does not wait it out")

	var events = recorder.all()
	require.NotEmpty(t, events)
	var last = events[len(events)-1]
	assert.False(t, last.OK)
	require.NotNil(t, last.Diag)
	assert.Equal(t, ParameterExtractionCancelled, last.Diag.Kind)

	assert.Equal(t, before, host.ListParameters(),
		"a pass cancelled before the swap leaves the active state untouched")
}

func Test_run_pass_InvalidatesSidecar(t *testing.T) {
	var session, _, _ = reload_fixture(t)
	session.cfg.DiscoveryBuildCommand = []string{"sh", "-c", "exit 1"}

	var specs, _ = parse_params_json([]byte(sample_params_json))
	require.NoError(t, session.cache.store(specs, nil))

	session.run_pass(context.Background())

	var _, err = os.Stat(session.cache.params_path())
	assert.True(t, os.IsNotExist(err), "a reload pass never trusts the old sidecar")
}

func Test_interesting(t *testing.T) {
	assert.True(t, interesting("/p/engine/lib.go"))
	assert.True(t, interesting("/p/engine/dsp/filter.go"))
	assert.False(t, interesting("/p/engine/.lib.go.swx"))
	assert.False(t, interesting("/p/engine/lib.go~"))
	assert.False(t, interesting("/p/engine/.#lib.go.swp"))
}

func Test_watch_DebouncedTrigger(t *testing.T) {
	var fixture, _, recorder = reload_fixture(t)
	var cfg = fixture.cfg
	cfg.DiscoveryBuildCommand = []string{"sh", "-c", "exit 1"}

	var shutdown = make(chan struct{})
	defer close(shutdown)

	var session, err = start_reload_session(cfg, fixture.cache, fixture.host, shutdown)
	require.NoError(t, err)
	defer session.Close()

	/* A burst of writes inside the debounce window is one pass. */
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.EngineDir, "lib.go"), []byte("package engine"), 0644))
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(recorder.all()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	var events = recorder.all()
	var fails = 0
	for _, e := range events {
		if e.Stage == "build" && !e.OK {
			fails++
		}
	}
	assert.Equal(t, 1, fails, "five writes, one debounced reload pass")
}
