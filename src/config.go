package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Runtime configuration.
 *
 * Description: All settings travel in one explicit Config struct built
 *		by the command line front end: defaults, then the
 *		optional wavecraft.yaml project file, then environment
 *		overrides, then flags.  Nothing in the runtime reads
 *		configuration from globals.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const CONFIG_FILE_NAME = "wavecraft.yaml"

const DEFAULT_WS_PORT = 9743
const DEFAULT_UI_PORT = 5173
const DEFAULT_DEBOUNCE_MS = 200
const DEFAULT_EXTRACT_TIMEOUT_SEC = 30
const DEFAULT_BUILD_TIMEOUT_SEC = 300

type Config struct {
	/* Project layout. */
	ProjectRoot string `yaml:"-"`
	EngineDir   string `yaml:"engine_dir"`   /* source subtree: watched, and drives sidecar staleness */
	ArtifactDir string `yaml:"artifact_dir"` /* compiled dylib and sidecars */
	UIDir       string `yaml:"ui_dir"`

	/* Build pipeline.  {out} is replaced with the target path. */
	BuildCommand          []string `yaml:"build_command"`
	DiscoveryBuildCommand []string `yaml:"discovery_build_command"`
	DylibName             string   `yaml:"dylib_name"`
	DiscoveryDylibName    string   `yaml:"discovery_dylib_name"`
	LegacyDiscovery       bool     `yaml:"legacy_discovery"` /* plugin without the discovery feature */

	/* UI dev server subprocess. */
	UICommand []string `yaml:"ui_command"`

	/* Ports and audio. */
	WebsocketPort      int    `yaml:"websocket_port"`
	UIPort             int    `yaml:"ui_port"`
	BlockSizeHint      int    `yaml:"block_size"`
	InputSource        string `yaml:"input"`
	AudioStrictMode    bool   `yaml:"-"` /* env/flag only */
	AllowMissingOutput bool   `yaml:"-"`

	/* Diagnostics. */
	Verbose       bool `yaml:"-"`
	StatsInterval int  `yaml:"stats_interval"`
	TextColor     int  `yaml:"-"`
	Announce      bool `yaml:"announce"` /* dns-sd announcement of the ws port */

	/* Timing knobs, mostly for tests. */
	DebounceMS        int `yaml:"debounce_ms"`
	ExtractTimeoutSec int `yaml:"extract_timeout_sec"`
	BuildTimeoutSec   int `yaml:"build_timeout_sec"`

	/* Path of the extraction helper binary; empty means look next to
	   our own executable. */
	ExtractHelper string `yaml:"extract_helper"`
}

func DefaultConfig(project_root string) *Config {
	return &Config{
		ProjectRoot:        project_root,
		EngineDir:          filepath.Join(project_root, "engine"),
		ArtifactDir:        filepath.Join(project_root, "target", "wavecraft"),
		UIDir:              filepath.Join(project_root, "ui"),
		DylibName:          "libplugin.so",
		DiscoveryDylibName: "libplugin-discovery.so",
		UICommand:          []string{"npm", "run", "dev"},
		WebsocketPort:      DEFAULT_WS_PORT,
		UIPort:             DEFAULT_UI_PORT,
		BlockSizeHint:      DEFAULT_BLOCK_SIZE,
		InputSource:        INPUT_DEFAULT,
		AudioStrictMode:    true,
		StatsInterval:      0,
		DebounceMS:         DEFAULT_DEBOUNCE_MS,
		ExtractTimeoutSec:  DEFAULT_EXTRACT_TIMEOUT_SEC,
		BuildTimeoutSec:    DEFAULT_BUILD_TIMEOUT_SEC,
	}
}

func (c *Config) DylibPath() string {
	return filepath.Join(c.ArtifactDir, c.DylibName)
}

func (c *Config) DiscoveryDylibPath() string {
	return filepath.Join(c.ArtifactDir, c.DiscoveryDylibName)
}

// build_command returns the configured command with {out} substituted,
// or the default toolchain invocation for this project layout.
func (c *Config) build_command(discovery bool) []string {
	var configured = c.BuildCommand
	var out = c.DylibPath()
	if discovery {
		configured = c.DiscoveryBuildCommand
		out = c.DiscoveryDylibPath()
	}

	if len(configured) > 0 {
		var cmd = make([]string, len(configured))
		for i, arg := range configured {
			if arg == "{out}" {
				arg = out
			}
			cmd[i] = arg
		}
		return cmd
	}

	if discovery {
		return []string{"go", "build", "-buildmode=c-shared",
			"-tags", "wavecraft_discovery", "-o", out, "./engine"}
	}
	return []string{"go", "build", "-buildmode=c-shared", "-o", out, "./engine"}
}

/*------------------------------------------------------------------
 *
 * Name:	LoadConfig
 *
 * Purpose:	Build the runtime configuration for a project.
 *
 * Description:	Starts from defaults, merges wavecraft.yaml when it
 *		exists, then applies environment overrides.  Flag
 *		overrides are the caller's job (the CLI front end).
 *
 *------------------------------------------------------------------*/

func LoadConfig(project_root string) (*Config, error) {
	var cfg = DefaultConfig(project_root)

	var path = filepath.Join(project_root, CONFIG_FILE_NAME)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.resolve_paths(project_root)
	}

	cfg.apply_env()

	return cfg, nil
}

// resolve_paths re-anchors relative yaml paths at the project root.
func (c *Config) resolve_paths(project_root string) {
	for _, p := range []*string{&c.EngineDir, &c.ArtifactDir, &c.UIDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(project_root, *p)
		}
	}
}

func (c *Config) apply_env() {
	if os.Getenv("WAVECRAFT_ALLOW_NO_AUDIO") == "1" {
		c.AudioStrictMode = false
		c.AllowMissingOutput = true
	}
	if port, ok := env_int("WAVECRAFT_WS_PORT"); ok {
		c.WebsocketPort = port
	}
	if port, ok := env_int("WAVECRAFT_UI_PORT"); ok {
		c.UIPort = port
	}
}

func env_int(name string) (int, bool) {
	var v = os.Getenv(name)
	if v == "" {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

/*------------------------------------------------------------------
 *
 * Name:	FindProjectRoot
 *
 * Purpose:	Locate the plugin project containing a directory.
 *
 * Description:	Walks upward looking for wavecraft.yaml or an engine/
 *		subdirectory, the way version control tools find their
 *		repository root.
 *
 *------------------------------------------------------------------*/

func FindProjectRoot(start string) (string, error) {
	var dir, err = filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, CONFIG_FILE_NAME)); err == nil {
			return dir, nil
		}
		if info, err := os.Stat(filepath.Join(dir, "engine")); err == nil && info.IsDir() {
			return dir, nil
		}

		var parent = filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no wavecraft project found at or above %s", start)
		}
		dir = parent
	}
}
