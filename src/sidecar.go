package wavecraft

/*------------------------------------------------------------------
 *
 * Purpose:   	Sidecar cache of extracted plugin metadata.
 *
 * Description: Two JSON files live next to the compiled dylib: one
 *		with the parameter spec list, one with the processor
 *		catalog.  A sidecar is valid iff it is newer than both
 *		the dylib and every source file under the project's
 *		engine subtree; then startup skips the discovery build
 *		and the extraction subprocess entirely.
 *
 *		mtimes are cheap and sufficient here - the build
 *		pipeline controls all writes, so no content hashing.
 *
 *		Readers fail closed: a sidecar that does not parse is
 *		treated as missing.
 *
 *------------------------------------------------------------------*/

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const SIDECAR_PARAMS_FILE = "wavecraft-params.json"
const SIDECAR_PROCESSORS_FILE = "wavecraft-processors.json"

type sidecar_cache struct {
	dir      string /* compiled-artifacts directory */
	dylib    string /* path of the compiled dylib */
	src_root string /* engine source subtree */
}

func new_sidecar_cache(artifact_dir string, dylib string, src_root string) *sidecar_cache {
	return &sidecar_cache{dir: artifact_dir, dylib: dylib, src_root: src_root}
}

func (c *sidecar_cache) params_path() string {
	return filepath.Join(c.dir, SIDECAR_PARAMS_FILE)
}

func (c *sidecar_cache) processors_path() string {
	return filepath.Join(c.dir, SIDECAR_PROCESSORS_FILE)
}

/*------------------------------------------------------------------
 *
 * Name:	fresh
 *
 * Purpose:	Decide whether the sidecar may be used as-is.
 *
 * Description:	Staleness is a pure function of three timestamps:
 *		the sidecar's own, the dylib's, and the newest mtime
 *		under the source tree.  Missing sidecar or missing
 *		dylib means stale.
 *
 *------------------------------------------------------------------*/

func (c *sidecar_cache) fresh() bool {
	var side, side_err = os.Stat(c.params_path())
	if side_err != nil {
		return false
	}

	var dylib, dylib_err = os.Stat(c.dylib)
	if dylib_err != nil {
		return false
	}

	if !side.ModTime().After(dylib.ModTime()) {
		return false
	}

	var newest_src = newest_mtime(c.src_root)
	return side.ModTime().After(newest_src)
}

// newest_mtime walks a source tree and returns the most recent file
// modification time.  Unreadable entries are skipped; the zero time is
// returned for an empty or missing tree (which never invalidates).
func newest_mtime(root string) time.Time {
	var newest time.Time

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		var info, info_err = d.Info()
		if info_err != nil {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})

	return newest
}

func (c *sidecar_cache) load() ([]ParameterSpec, []ProcessorEntry, error) {
	var data, err = os.ReadFile(c.params_path())
	if err != nil {
		return nil, nil, err
	}

	specs, err := parse_params_json(data)
	if err != nil {
		return nil, nil, err
	}

	/* The catalog is best-effort; absence or damage is not an error. */
	var catalog []ProcessorEntry
	if cat_data, cat_err := os.ReadFile(c.processors_path()); cat_err == nil {
		if parse_err := json_unmarshal_strict(cat_data, &catalog); parse_err != nil {
			catalog = nil
		}
	}

	return specs, catalog, nil
}

func (c *sidecar_cache) store(specs []ParameterSpec, catalog []ProcessorEntry) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}

	var data, err = json.MarshalIndent(specs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.params_path(), data, 0644); err != nil {
		return err
	}

	if catalog != nil {
		cat_data, cat_err := json.MarshalIndent(catalog, "", "  ")
		if cat_err != nil {
			return cat_err
		}
		if err := os.WriteFile(c.processors_path(), cat_data, 0644); err != nil {
			return err
		}
	}

	return nil
}

// invalidate removes the sidecar files so the next startup is forced
// through discovery.  Used at the head of every reload pass.
func (c *sidecar_cache) invalidate() {
	os.Remove(c.params_path())
	os.Remove(c.processors_path())
}

func json_unmarshal_strict(data []byte, v any) error {
	var dec = json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
