package main

import (
	"os"

	"github.com/voltgrid/stationd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
