package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Extraction helper: load a (discovery-built) plugin
 *		dylib, print its metadata JSON on stdout, exit.
 *
 * Description: Runs as a short-lived subprocess of the dev runtime.
 *		Even a discovery build can pull in native dependencies
 *		that take process-global locks on some systems; doing
 *		the dlopen here means the worst case is this process
 *		hanging until the parent's timeout kills it, not the
 *		dev session wedging.
 *
 *		Output shape:  {"params": [...], "processors": [...]}
 *
 *---------------------------------------------------------------*/

import (
	"encoding/json"
	"fmt"
	"os"

	wavecraft "github.com/RonHouben/wavecraft/src"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: wavecraft-extract <plugin-dylib>\n")
		os.Exit(2)
	}

	var loader, openErr = wavecraft.OpenPlugin(os.Args[1])
	if openErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", openErr)
		os.Exit(1)
	}
	defer loader.Close()

	if extractErr := loader.ExtractMetadata(); extractErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", extractErr)
		os.Exit(1)
	}

	var out = struct {
		Params     []wavecraft.ParameterSpec  `json:"params"`
		Processors []wavecraft.ProcessorEntry `json:"processors,omitempty"`
	}{
		Params:     loader.Specs,
		Processors: loader.Catalog,
	}

	var enc = json.NewEncoder(os.Stdout)
	if encodeErr := enc.Encode(out); encodeErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", encodeErr)
		os.Exit(1)
	}
}
