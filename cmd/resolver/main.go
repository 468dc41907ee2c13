// Command resolver is the entry point of the wager resolution engine.
package main

import (
	"fmt"
	"os"

	"github.com/alanyoungcy/betresolver/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
