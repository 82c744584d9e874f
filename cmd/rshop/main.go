// rshop - browse, download and unpack game archives from SMB shares
package main

import (
	"os"

	"github.com/retro/rshop/internal/cli"
	"github.com/retro/rshop/internal/version"
)

// Version information, set with -ldflags "-X main.Version=..."
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
