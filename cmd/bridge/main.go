// Package main is the single-binary entrypoint for the bridge.
package main

import "github.com/aviz85/elevenlabs-bridge-sub001/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
