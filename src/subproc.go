package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Helpers for build, extraction and UI subprocesses.
 *
 * Description: Cancellation is only useful if it actually stops the
 *		work, so every subprocess gets its own process group
 *		and cancellation kills the group, not just the direct
 *		child.  A build toolchain that forks compilers would
 *		otherwise keep running headless.
 *
 *------------------------------------------------------------------*/

import (
	"io"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

func setup_process_group(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		/* Kill, not signal: a cancelled pass must release the
		   artifact directory before the next pass starts. */
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

func io_tee(w io.Writer, tail io.Writer) io.Writer {
	return io.MultiWriter(w, tail)
}

// last_lines returns up to n trailing non-empty lines of s, for folding
// subprocess output into a diagnostic.
func last_lines(s string, n int) string {
	var lines = strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
