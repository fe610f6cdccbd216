// Package main provides the entry point for the indexq CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexq/cmd/indexq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
