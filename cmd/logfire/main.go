// Command logfire runs the logfire event analytics server and its
// maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/logfire/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "logfire:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
