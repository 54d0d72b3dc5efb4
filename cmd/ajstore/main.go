// Command ajstore inspects and maintains ajstore collections.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ajstore/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Usage and flag errors are not reported by the commands.
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
