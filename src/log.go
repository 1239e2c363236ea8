package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Structured logging for everything that runs off the
 *		audio thread.
 *
 * Description: The supervisor, the reload orchestrator and the IPC
 *		server log through a shared charmbracelet logger with a
 *		per-subsystem prefix.  The audio callbacks never log;
 *		they only bump counters which are reported elsewhere
 *		(see audio_stats.go).
 *
 *------------------------------------------------------------------*/

import (
	"os"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "wavecraft",
})

func log_init(verbose bool) {
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// log_sub returns a logger for one subsystem, e.g. "reload" or "ipc".
func log_sub(name string) *log.Logger {
	return logger.WithPrefix("wavecraft/" + name)
}
