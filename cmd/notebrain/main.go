// Package main provides the entry point for the notebrain CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/notebrain/cmd/notebrain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
