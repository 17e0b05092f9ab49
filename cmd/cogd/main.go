// Command cogd runs the modular chat bot core.
package main

import (
	"context"
	"os"

	"github.com/roach88/cogd/internal/cli"
	"github.com/roach88/cogd/modules"
)

func main() {
	os.Exit(cli.Execute(context.Background(), modules.Catalog(), os.Args[1:], os.Stdout, os.Stderr))
}
