package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Diagnostic error kinds for the whole runtime.
 *
 * Description: Every failure that can reach a user carries a kind, a
 *		short category hint for the UI ("device-missing",
 *		"format-unsupported", ...) and, where we have one, a
 *		recovery suggestion.  The kinds are deliberately flat;
 *		wrapping for context happens with fmt.Errorf("...: %w").
 *
 *------------------------------------------------------------------*/

import (
	"errors"
	"fmt"
)

type DiagKind string

const (
	DeviceEnumerationFailed      DiagKind = "DeviceEnumerationFailed"
	DeviceConfigUnsupported      DiagKind = "DeviceConfigUnsupported"
	StreamStartFailed            DiagKind = "StreamStartFailed"
	PluginBuildFailed            DiagKind = "PluginBuildFailed"
	PluginLoadFailed             DiagKind = "PluginLoadFailed"
	VTableVersionUnsupported     DiagKind = "VTableVersionUnsupported"
	ParameterExtractionFailed    DiagKind = "ParameterExtractionFailed"
	ParameterExtractionCancelled DiagKind = "ParameterExtractionCancelled"
	UnknownParameter             DiagKind = "UnknownParameter"
	OutOfRange                   DiagKind = "OutOfRange"
	PortInUse                    DiagKind = "PortInUse"
	DependencyMissing            DiagKind = "DependencyMissing"
	UserDspPanic                 DiagKind = "UserDspPanic"
)

// Diag is a diagnostic suitable for both logging and display in the UI.
type Diag struct {
	Kind     DiagKind `json:"kind"`
	Category string   `json:"category"`          /* short hint, e.g. "device-missing" */
	Detail   string   `json:"detail"`            /* human readable text */
	Suggest  string   `json:"suggest,omitempty"` /* recovery suggestion, may be empty */
}

func (d *Diag) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}

func new_diag(kind DiagKind, category string, format string, a ...any) *Diag {
	return &Diag{
		Kind:     kind,
		Category: category,
		Detail:   fmt.Sprintf(format, a...),
	}
}

func (d *Diag) with_suggestion(s string) *Diag {
	d.Suggest = s
	return d
}

// diag_from extracts the Diag from an error chain, wrapping foreign errors
// into a generic diagnostic of the given kind so the UI always has
// something displayable.
func diag_from(err error, fallback DiagKind, category string) *Diag {
	var d *Diag
	if errors.As(err, &d) {
		return d
	}

	return new_diag(fallback, category, "%v", err)
}
