package main

import (
	"os"

	"github.com/abelbrown/callsight/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
