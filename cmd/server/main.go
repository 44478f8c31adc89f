// Package main is the cards API entry point.
//
// The binary has three commands:
//
//	cards serve     run the HTTP API (migrates the store first)
//	cards migrate   apply store migrations and exit
//	cards version   print build information
//
// Configuration comes from defaults, an optional YAML file, an optional .env
// file and the environment, in that order; flags override all of them.
package main

import (
	"fmt"
	"os"
)

var (
	// Set at build time with -ldflags "-X main.buildVersion=...".
	buildVersion = "dev"
	buildDate    = "unknown"
)

func main() {
	if err := newRootCmd(buildVersion, buildDate).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
