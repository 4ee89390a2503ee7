// Command dianabot runs the engagement core.
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/dianabot-core/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
