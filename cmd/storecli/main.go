// Command storecli drives a storecache Store from the terminal: a
// scripted demo of the six end-to-end scenarios spec.md documents, a
// concurrent write benchmark, and a live dashboard over the Shared Cache
// and Lock Manager.
//
// Grounded on StoreMy's root main.go / cmd surface, restructured around
// cobra the way the wider retrieval pack's CLIs are structured, since
// StoreMy itself only exposes flag-based subcommands.
package main

import (
	"fmt"
	"os"

	"storecache/cmd/storecli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
