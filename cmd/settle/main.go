// Command settle runs transliteration conformance suites against live web UIs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/settle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own ExitErrors; anything else is a usage
		// or flag error that nothing has printed yet.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
}
