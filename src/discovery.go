package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Parameter discovery: obtain plugin metadata without
 *		running the plugin's host-format static initializers.
 *
 * Description: Loading a normally built plugin just to ask it for its
 *		parameter list is unsafe: the host-format exports
 *		register with OS audio services at load time and can
 *		block indefinitely on some systems.  So:
 *
 *		1. Build the plugin with the discovery feature (a build
 *		   tag on Go plugins), which elides those exports but
 *		   keeps the metadata FFI.
 *		2. Run a short-lived subprocess (wavecraft-extract)
 *		   that dlopens the discovery dylib and prints the
 *		   metadata JSON on stdout.  Even a discovery build can
 *		   drag in native dependencies that take process-global
 *		   locks, and a subprocess contains that.
 *		3. Cache the result in the sidecar (sidecar.go).
 *
 *		A subprocess exiting nonzero is retried once, then
 *		surfaced.  Cancellation kills the whole process group.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// extract_output is what the helper prints on stdout.
type extract_output struct {
	Params     []ParameterSpec  `json:"params"`
	Processors []ProcessorEntry `json:"processors,omitempty"`
}

/*------------------------------------------------------------------
 *
 * Name:	run_build
 *
 * Purpose:	Run one build toolchain invocation.
 *
 * Description:	Output goes to a timestamped log file under the
 *		artifact directory; on failure the tail of the log is
 *		folded into the diagnostic so the UI has something to
 *		show without shipping the whole build log.
 *
 *------------------------------------------------------------------*/

func run_build(ctx context.Context, cfg *Config, discovery bool) error {
	var argv = cfg.build_command(discovery)

	var log_path = build_log_path(cfg)
	var log_file, log_err = os.Create(log_path)
	if log_err != nil {
		log_file = nil /* build proceeds, log goes nowhere */
	}

	var buildctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.BuildTimeoutSec)*time.Second)
	defer cancel()

	var tail bytes.Buffer
	var cmd = exec.CommandContext(buildctx, argv[0], argv[1:]...)
	cmd.Dir = cfg.ProjectRoot
	if log_file != nil {
		defer log_file.Close()
		cmd.Stdout = log_file
		cmd.Stderr = io_tee(log_file, &tail)
	} else {
		cmd.Stdout = &tail
		cmd.Stderr = &tail
	}
	setup_process_group(cmd)

	log_sub("build").Debug("running", "cmd", argv, "discovery", discovery, "log", log_path)

	var err = cmd.Run()
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return new_diag(ParameterExtractionCancelled, "cancelled", "build superseded")
	}

	return new_diag(PluginBuildFailed, "build-failed",
		"%s failed: %v\n%s", argv[0], err, last_lines(tail.String(), 12)).
		with_suggestion("see " + log_path)
}

func build_log_path(cfg *Config) string {
	os.MkdirAll(cfg.ArtifactDir, 0755)

	var name = "build.log"
	if f, err := strftime.New("build-%Y%m%d-%H%M%S.log"); err == nil {
		name = f.FormatString(time.Now())
	}
	return filepath.Join(cfg.ArtifactDir, name)
}

/*------------------------------------------------------------------
 *
 * Name:	run_extraction
 *
 * Purpose:	Extract metadata from a discovery dylib in a subprocess.
 *
 * Inputs:	dylib	- path of the discovery-built library.
 *
 * Returns:	Parsed specs and catalog.  One automatic retry on a
 *		nonzero exit; cancellation and timeout kill the
 *		subprocess's process group.
 *
 *------------------------------------------------------------------*/

func run_extraction(ctx context.Context, cfg *Config, dylib string) ([]ParameterSpec, []ProcessorEntry, error) {
	var helper, helper_err = extract_helper_path(cfg)
	if helper_err != nil {
		return nil, nil, helper_err
	}

	var attempt_err error
	for attempt := 0; attempt < 2; attempt++ {
		var specs, catalog, err = extract_once(ctx, cfg, helper, dylib)
		if err == nil {
			return specs, catalog, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, nil, new_diag(ParameterExtractionCancelled, "cancelled", "extraction superseded")
		}
		attempt_err = err
		log_sub("discovery").Warn("extraction attempt failed", "attempt", attempt+1, "err", err)
	}

	return nil, nil, diag_from(attempt_err, ParameterExtractionFailed, "extract-failed")
}

func extract_once(ctx context.Context, cfg *Config, helper string, dylib string) ([]ParameterSpec, []ProcessorEntry, error) {
	var exctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.ExtractTimeoutSec)*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	var cmd = exec.CommandContext(exctx, helper, dylib)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setup_process_group(cmd)

	if err := cmd.Run(); err != nil {
		if exctx.Err() == context.DeadlineExceeded {
			return nil, nil, new_diag(ParameterExtractionFailed, "extract-timeout",
				"extraction did not finish within %ds", cfg.ExtractTimeoutSec).
				with_suggestion("does the plugin block in a static initializer?")
		}
		return nil, nil, fmt.Errorf("extract subprocess: %w (%s)", err, last_lines(stderr.String(), 4))
	}

	var out extract_output
	if err := json_unmarshal_strict(stdout.Bytes(), &out); err != nil {
		return nil, nil, fmt.Errorf("extract output: %w", err)
	}

	if err := validate_specs(out.Params); err != nil {
		return nil, nil, fmt.Errorf("extract output: %w", err)
	}

	return out.Params, out.Processors, nil
}

func extract_helper_path(cfg *Config) (string, error) {
	if cfg.ExtractHelper != "" {
		return cfg.ExtractHelper, nil
	}

	var self, err = os.Executable()
	if err == nil {
		var candidate = filepath.Join(filepath.Dir(self), "wavecraft-extract")
		if _, stat_err := os.Stat(candidate); stat_err == nil {
			return candidate, nil
		}
	}

	if path, look_err := exec.LookPath("wavecraft-extract"); look_err == nil {
		return path, nil
	}

	return "", new_diag(DependencyMissing, "toolchain",
		"wavecraft-extract helper not found").
		with_suggestion("reinstall the wavecraft CLI")
}

/*------------------------------------------------------------------
 *
 * Name:	discover_parameters
 *
 * Purpose:	Produce the current parameter spec list, cheaply when
 *		possible.
 *
 * Description:	Sidecar first.  If stale: discovery build, subprocess
 *		extraction, sidecar write.  Legacy plugins (no
 *		discovery feature) fall back to extracting from the
 *		standard build with a warning - that accepts the hang
 *		risk the discovery pipeline exists to avoid.
 *
 *------------------------------------------------------------------*/

func discover_parameters(ctx context.Context, cfg *Config, cache *sidecar_cache) ([]ParameterSpec, []ProcessorEntry, error) {
	if cache.fresh() {
		if specs, catalog, err := cache.load(); err == nil {
			log_sub("discovery").Debug("sidecar fresh, skipping discovery build")
			return specs, catalog, nil
		}
		/* Fail closed on a damaged sidecar: fall through to rebuild. */
	}

	var dylib = cfg.DiscoveryDylibPath()
	if cfg.LegacyDiscovery {
		log_sub("discovery").Warn("plugin has no discovery feature; loading a standard build for extraction (may hang on some systems)")
		dylib = cfg.DylibPath()
		if err := run_build(ctx, cfg, false); err != nil {
			return nil, nil, err
		}
	} else {
		if err := run_build(ctx, cfg, true); err != nil {
			return nil, nil, err
		}
	}

	specs, catalog, err := run_extraction(ctx, cfg, dylib)
	if err != nil {
		return nil, nil, err
	}

	if err := cache.store(specs, catalog); err != nil {
		log_sub("discovery").Warn("could not write sidecar", "err", err)
	}

	return specs, catalog, nil
}
