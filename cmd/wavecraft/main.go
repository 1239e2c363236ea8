package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the "wavecraft dev" audio runtime,
 *		which includes:
 *
 *			Full-duplex audio engine driving the user DSP.
 *			Lock-free parameter bridge.
 *			Parameter discovery with a sidecar cache.
 *			Hot reload of the plugin dylib.
 *			WebSocket JSON-RPC server for the browser UI.
 *			UI dev-server subprocess management.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	wavecraft "github.com/RonHouben/wavecraft/src"
	"github.com/spf13/pflag"
)

func main() {
	var projectDir = pflag.StringP("project", "C", ".", "Plugin project directory (or any directory inside it).")
	var wsPort = pflag.IntP("ws-port", "w", 0, "WebSocket port for the browser UI.  0 uses the configured default.")
	var uiPort = pflag.IntP("ui-port", "u", 0, "UI dev-server port.  0 uses the configured default.")
	var blockSize = pflag.IntP("block-size", "b", 0, "Audio block size in frames, power of two, 128-1024.")
	var inputSource = pflag.StringP("input", "i", "", `Audio input source:
default        system capture device
<substring>    capture device matching name
tone[:hz]      built-in sine generator
silence        all-zero input`)
	var allowNoAudio = pflag.Bool("allow-no-audio", false, "Continue without audio if the device setup fails (degraded mode).  Same as WAVECRAFT_ALLOW_NO_AUDIO=1.")
	var audioStatsInterval = pflag.IntP("audio-stats-interval", "a", 0, "Audio statistics interval in seconds.  0 to disable.")
	var announce = pflag.Bool("announce", false, "Announce the dev runtime on the local network with DNS-SD.")
	var noUI = pflag.Bool("no-ui", false, "Do not start the UI dev-server subprocess.")
	var textColor = pflag.IntP("text-color", "t", 1, "Text colors.  0=disabled. 1=enabled.")
	var verbose = pflag.BoolP("verbose", "v", false, "Verbose (debug) logging.")
	var showVersion = pflag.Bool("version", false, "Print version and exit.")

	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - development-mode audio runtime for wavecraft plugins.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: wavecraft [options]\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Run from inside a plugin project (a directory with wavecraft.yaml or engine/).\n")
	}

	// !!! PARSE !!!
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("wavecraft dev runtime %d.%d\n", wavecraft.MAJOR_VERSION, wavecraft.MINOR_VERSION)
		os.Exit(0)
	}

	/*
	 * Phase 1: project detection, then configuration in layers:
	 * defaults, wavecraft.yaml, environment, command line.
	 */

	var root, rootErr = wavecraft.FindProjectRoot(*projectDir)
	if rootErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", rootErr)
		os.Exit(1)
	}

	var cfg, cfgErr = wavecraft.LoadConfig(root)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", cfgErr)
		os.Exit(1)
	}

	if *wsPort != 0 {
		cfg.WebsocketPort = *wsPort
	}
	if *uiPort != 0 {
		cfg.UIPort = *uiPort
	}
	if *blockSize != 0 {
		if *blockSize < 128 || *blockSize > 1024 {
			fmt.Fprintf(os.Stderr, "-b option, block size, must be in the 128-1024 range.\n")
			os.Exit(1)
		}
		cfg.BlockSizeHint = *blockSize
	}
	if *inputSource != "" {
		cfg.InputSource = *inputSource
	}
	if *allowNoAudio {
		cfg.AudioStrictMode = false
		cfg.AllowMissingOutput = true
	}
	if *audioStatsInterval > 0 {
		cfg.StatsInterval = *audioStatsInterval
	}
	if *announce {
		cfg.Announce = true
	}
	if *noUI {
		cfg.UICommand = nil
	}
	cfg.Verbose = *verbose
	cfg.TextColor = *textColor

	// Done parsing, let's start doing!

	wavecraft.Banner(cfg)

	var sup = wavecraft.NewSupervisor(cfg)
	os.Exit(sup.Run())
}
