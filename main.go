package main

import (
	"os"

	"github.com/codeur-agent/codeur-responder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
