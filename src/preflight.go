package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Startup preflight: fail fast, with diagnostics a
 *		person can act on.
 *
 * Description: Binds the WebSocket port (keeping the listener for the
 *		server), probes the UI dev-server port, and checks the
 *		toolchain prerequisites.  All of this happens before
 *		anything expensive starts, so a taken port costs two
 *		seconds, not a full discovery build.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"net"
	"os/exec"
)

/*------------------------------------------------------------------
 *
 * Name:	preflight_ports
 *
 * Purpose:	Bind the WebSocket port and probe the UI port.
 *
 * Returns:	The bound WebSocket listener, handed to the IPC server
 *		as-is (no close-then-rebind race).
 *
 *------------------------------------------------------------------*/

func preflight_ports(cfg *Config) (net.Listener, error) {
	var ws_addr = fmt.Sprintf("127.0.0.1:%d", cfg.WebsocketPort)
	var ln, err = net.Listen("tcp", ws_addr)
	if err != nil {
		return nil, new_diag(PortInUse, "port-in-use",
			"websocket port %d is taken: %v", cfg.WebsocketPort, err).
			with_suggestion("stop the other process or set WAVECRAFT_WS_PORT to a free port")
	}

	var ui_addr = fmt.Sprintf("127.0.0.1:%d", cfg.UIPort)
	ui_ln, ui_err := net.Listen("tcp", ui_addr)
	if ui_err != nil {
		ln.Close()
		return nil, new_diag(PortInUse, "port-in-use",
			"ui dev-server port %d is taken: %v", cfg.UIPort, ui_err).
			with_suggestion("is another wavecraft dev session running?")
	}
	ui_ln.Close() /* the UI toolchain binds it itself */

	return ln, nil
}

/*------------------------------------------------------------------
 *
 * Name:	preflight_dependencies
 *
 * Purpose:	Verify the build and UI toolchains exist.
 *
 *------------------------------------------------------------------*/

func preflight_dependencies(cfg *Config) error {
	var build_cmd = cfg.build_command(false)
	if _, err := exec.LookPath(build_cmd[0]); err != nil {
		return new_diag(DependencyMissing, "toolchain",
			"build tool %q not found in PATH", build_cmd[0]).
			with_suggestion("install the plugin toolchain")
	}

	if len(cfg.UICommand) > 0 {
		if _, err := exec.LookPath(cfg.UICommand[0]); err != nil {
			return new_diag(DependencyMissing, "toolchain",
				"ui tool %q not found in PATH", cfg.UICommand[0]).
				with_suggestion("install Node.js, or set ui_command in wavecraft.yaml")
		}
	}

	return nil
}
