// Package main provides the entry point for the flow command line.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/flow/internal/cli"
)

// Version information set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

func main() {
	// Logs go to stderr so stdout stays clean for hook output.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cli.Execute(cli.VersionInfo{Version: Version, BuildTime: BuildTime, Commit: Commit}); err != nil {
		os.Exit(1)
	}
}
