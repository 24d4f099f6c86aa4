// Package main is the entry point for the liquidsoapd application.
package main

import (
	"os"

	"github.com/dhannyz/liquidsoap-go/cmd/liquidsoapd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
