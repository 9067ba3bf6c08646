// Command flick drives repeatable UI transition tests from declarative
// scenario files.
package main

import (
	"os"

	"github.com/roach88/flick/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
