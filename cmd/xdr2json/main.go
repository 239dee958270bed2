// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

// Command xdr2json converts XDR encoded values to JSON.
package main

import (
	"go.e43.eu/xdr2json/cmd/xdr2json/commands"
	"go.e43.eu/xdr2json/internal/logger"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	err := commands.Execute()
	_ = logger.Logger().Sync()
	if err != nil {
		commands.Exit(err)
	}
}
