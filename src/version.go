package wavecraft

const MAJOR_VERSION = 0
const MINOR_VERSION = 4

// Highest processor vtable version this runtime knows how to drive.
const MAX_VTABLE_VERSION = 1

// Banner initializes console colors and logging, then prints the
// startup banner.  Called once by the CLI front end before Run.
func Banner(cfg *Config) {
	text_color_init(cfg.TextColor)
	log_init(cfg.Verbose)

	text_color_set(DW_COLOR_INFO)
	dw_printf("Wavecraft dev runtime version %d.%d\n", MAJOR_VERSION, MINOR_VERSION)
	dw_printf("Project: %s\n", cfg.ProjectRoot)
}
