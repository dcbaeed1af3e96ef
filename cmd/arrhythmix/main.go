package main

import (
	"os"

	"github.com/banshee-data/arrhythmix/cmd/arrhythmix/commands"
	"github.com/banshee-data/arrhythmix/internal/version"
)

// Version information - set during build
var (
	buildVersion = "dev"
	gitSHA       = "unknown"
	buildTime    = "unknown"
)

func main() {
	version.Version = buildVersion
	version.GitSHA = gitSHA
	version.BuildTime = buildTime

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
