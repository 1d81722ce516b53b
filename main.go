package main

import (
	"os"

	"github.com/yumyai/seqst/cmd"
)

// Build information injected via ldflags at build time.
var version = "0.1.0"

func main() {
	cmd.SetVersion(version)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
