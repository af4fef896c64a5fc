package main

import (
	"os"

	"github.com/Quantum-369/arxiv-scribe-view/cmd/scribe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
