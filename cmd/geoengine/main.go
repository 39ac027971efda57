package main

import (
	"fmt"
	"os"

	"github.com/geoengine/geoengine/internal/cli"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	app := cli.New()
	app.SetVersion(version)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
