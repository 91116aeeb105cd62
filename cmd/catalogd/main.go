// Command catalogd runs the catalog server: it accepts periodic
// producer updates over UDP/TCP, maintains a live table, persists its
// history as a day-sharded delta log, and serves queries over HTTP.
package main

import (
	"fmt"
	"os"

	"catalogd.dev/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
