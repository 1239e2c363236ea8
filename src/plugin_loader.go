package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Load a plugin dylib and resolve its exported symbols.
 *
 * Description: A PluginLoader owns the dlopen handle plus everything
 *		extracted from it: the parameter spec list, the
 *		optional processor catalog, and the optional dev
 *		processor entry points.  Closing the loader unloads the
 *		library, so the loader must outlive every Processor
 *		created from it.  A hot reload (Host.ApplyReload)
 *		replaces loader and processor together while the audio
 *		streams keep running: the old processor is dropped
 *		first, the old loader closed last.
 *
 *------------------------------------------------------------------*/

// #cgo LDFLAGS: -ldl
// #include <stdlib.h>
// #include <dlfcn.h>
// #include "wavecraft_abi.h"
//
// static char *wavecraft_call_get_string(void *fn) {
// 	return ((wavecraft_get_string_fn)fn)();
// }
// static void wavecraft_call_free_string(void *fn, char *p) {
// 	((wavecraft_free_string_fn)fn)(p);
// }
// static const wavecraft_vtable_s *wavecraft_call_create_processor(void *fn, float sr, uint32_t max_block) {
// 	return ((wavecraft_dev_create_processor_fn)fn)(sr, max_block);
// }
import "C"

import (
	"fmt"
	"unsafe"
)

const SYM_GET_PARAMS_JSON = "wavecraft_get_params_json"
const SYM_FREE_STRING = "wavecraft_free_string"
const SYM_DEV_CREATE_PROCESSOR = "wavecraft_dev_create_processor"
const SYM_DEV_SET_PARAMETER = "wavecraft_dev_set_parameter"
const SYM_GET_PROCESSORS_JSON = "wavecraft_get_processors_json"

type PluginLoader struct {
	path   string
	handle unsafe.Pointer

	get_params_json  unsafe.Pointer /* required */
	free_string      unsafe.Pointer /* required */
	create_processor unsafe.Pointer /* optional; nil means meter-only */
	set_parameter    unsafe.Pointer /* optional */
	get_processors   unsafe.Pointer /* optional */

	Specs   []ParameterSpec
	Catalog []ProcessorEntry
}

/*------------------------------------------------------------------
 *
 * Name:	OpenPlugin
 *
 * Purpose:	dlopen a plugin dylib and resolve its symbols.
 *
 * Description:	RTLD_NOW so missing transitive symbols surface here,
 *		not in the middle of an audio block.  RTLD_LOCAL keeps
 *		two generations of the same plugin from colliding
 *		during a hot reload.
 *
 *		This does NOT read parameters; call ExtractMetadata (or
 *		populate Specs from the sidecar) afterwards.
 *
 *------------------------------------------------------------------*/

func OpenPlugin(path string) (*PluginLoader, error) {
	var cpath = C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var handle = C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, new_diag(PluginLoadFailed, "load-failed",
			"could not open %s: %s", path, C.GoString(C.dlerror()))
	}

	var l = &PluginLoader{path: path, handle: handle}

	var required = map[string]*unsafe.Pointer{
		SYM_GET_PARAMS_JSON: &l.get_params_json,
		SYM_FREE_STRING:     &l.free_string,
	}
	for name, dst := range required {
		var sym = l.lookup(name)
		if sym == nil {
			C.dlclose(handle)
			return nil, new_diag(PluginLoadFailed, "symbol-missing",
				"%s does not export %s; is this a wavecraft plugin?", path, name).
				with_suggestion("rebuild the plugin against the current SDK")
		}
		*dst = sym
	}

	l.create_processor = l.lookup(SYM_DEV_CREATE_PROCESSOR)
	l.set_parameter = l.lookup(SYM_DEV_SET_PARAMETER)
	l.get_processors = l.lookup(SYM_GET_PROCESSORS_JSON)

	return l, nil
}

func (l *PluginLoader) lookup(name string) unsafe.Pointer {
	var cname = C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	C.dlerror() /* clear any stale error */
	return C.dlsym(l.handle, cname)
}

func (l *PluginLoader) Path() string {
	return l.path
}

// HasProcessor reports whether the dylib can build a DSP instance; false
// means the runtime operates in meter-only mode.
func (l *PluginLoader) HasProcessor() bool {
	return l.create_processor != nil
}

// call_string_fn invokes an exported string-returning function and copies
// the result into Go memory, freeing the C side with the plugin's paired
// free function.
func (l *PluginLoader) call_string_fn(fn unsafe.Pointer) ([]byte, error) {
	var cstr = C.wavecraft_call_get_string(fn)
	if cstr == nil {
		return nil, fmt.Errorf("plugin returned a null string")
	}
	defer C.wavecraft_call_free_string(l.free_string, cstr)

	return []byte(C.GoString(cstr)), nil
}

/*------------------------------------------------------------------
 *
 * Name:	ExtractMetadata
 *
 * Purpose:	Pull parameter specs (and the processor catalog, when
 *		exported) out of an already loaded dylib.
 *
 * Description:	Only safe on a discovery-built dylib, or inside the
 *		short-lived extraction subprocess.  A standard-built
 *		dylib may run host-format static initializers on load,
 *		which is exactly what the discovery pipeline avoids.
 *
 *------------------------------------------------------------------*/

func (l *PluginLoader) ExtractMetadata() error {
	var data, err = l.call_string_fn(l.get_params_json)
	if err != nil {
		return new_diag(ParameterExtractionFailed, "extract-failed", "%s: %v", l.path, err)
	}

	specs, err := parse_params_json(data)
	if err != nil {
		return new_diag(ParameterExtractionFailed, "extract-failed", "%s: %v", l.path, err)
	}
	l.Specs = specs

	if l.get_processors != nil {
		catalog_data, catalog_err := l.call_string_fn(l.get_processors)
		if catalog_err == nil {
			var catalog []ProcessorEntry
			if parse_err := json_unmarshal_strict(catalog_data, &catalog); parse_err == nil {
				l.Catalog = catalog
			}
		}
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Name:	NewProcessor
 *
 * Purpose:	Construct a DSP instance through the dev vtable.
 *
 * Returns:	A ready Processor, or an error when the plugin has no
 *		dev processor entry point or speaks a vtable version
 *		newer than this runtime.
 *
 *------------------------------------------------------------------*/

func (l *PluginLoader) NewProcessor(sample_rate float32, max_block uint32) (*Processor, error) {
	if l.create_processor == nil {
		return nil, new_diag(PluginLoadFailed, "no-processor",
			"%s has no %s export; running meter-only", l.path, SYM_DEV_CREATE_PROCESSOR)
	}

	var vt = C.wavecraft_call_create_processor(l.create_processor, C.float(sample_rate), C.uint32_t(max_block))
	if vt == nil {
		return nil, new_diag(PluginLoadFailed, "load-failed", "%s returned a null vtable", l.path)
	}

	if uint32(vt.version) > MAX_VTABLE_VERSION {
		return nil, new_diag(VTableVersionUnsupported, "vtable-version",
			"plugin vtable version %d exceeds supported %d", uint32(vt.version), MAX_VTABLE_VERSION).
			with_suggestion("update the wavecraft CLI")
	}

	return new_processor(vt, l.set_parameter, sample_rate, max_block)
}

// Close unloads the dylib.  Every Processor created from this loader must
// already be dropped.
func (l *PluginLoader) Close() {
	if l.handle != nil {
		C.dlclose(l.handle)
		l.handle = nil
	}
}
