// Command promptctl runs the voice prompt audio chain on local WAV files.
//
// Usage:
//
//	promptctl inspect take.wav [--json]
//	promptctl enhance take.wav -o clean.wav [--light]
//	promptctl assemble a.wav b.wav -o prompt.wav [--enhance] [--rate 24000]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
