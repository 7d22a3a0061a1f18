package main

import (
	"os"

	"github.com/censor-ci/censor/pkg/cli"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.Run(version, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
