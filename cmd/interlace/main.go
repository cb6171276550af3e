// Package main provides the interlace CLI.
//
// Usage:
//
//	interlace -i conversation.wav -o interlaced.wav [flags]
//
// The stereo input is split at pauses on each channel and the resulting
// utterances are spliced into one mono track with crossfades.
package main

import (
	"fmt"
	"os"

	"github.com/maauso/interlace-api/cmd/interlace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
