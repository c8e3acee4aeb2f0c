package main

import (
	"os"

	"github.com/mbrevik/sundial/cmd/sundial/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
