package main

import (
	"os"

	"github.com/kilianp07/enginesim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
