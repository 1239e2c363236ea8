// Package wavecraft is the development-mode audio runtime of the Wavecraft
// plugin SDK: it hosts a freshly compiled plugin DSP between a capture and a
// playback stream, and exposes parameters and meters to the browser UI.
package wavecraft

// Console colors for interactive output, in the style of textcolor.c from
// the ancestors of this code base.  Structured logging goes through log.go;
// this is only for banners, device listings and other things a person reads
// while the runtime starts up.

import (
	"fmt"
	"os"
)

type dw_color_e int

const (
	DW_COLOR_INFO  dw_color_e = iota /* default */
	DW_COLOR_ERROR                   /* red */
	DW_COLOR_METER                   /* green */
	DW_COLOR_DEBUG                   /* dim */
)

var _text_color_level int

var color_codes = map[dw_color_e]string{
	DW_COLOR_INFO:  "\033[0m",
	DW_COLOR_ERROR: "\033[31m",
	DW_COLOR_METER: "\033[32m",
	DW_COLOR_DEBUG: "\033[2m",
}

func text_color_init(level int) {
	_text_color_level = level
}

func text_color_set(c dw_color_e) {
	if _text_color_level == 0 {
		return
	}

	fmt.Fprint(os.Stdout, color_codes[c])
}

func dw_printf(format string, a ...any) (int, error) {
	return fmt.Printf(format, a...)
}
