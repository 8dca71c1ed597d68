// Package main is the entry point for marketctl
package main

import (
	"os"

	"github.com/bizmarket/marketplace/cmd/marketctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
