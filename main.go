package main

import (
	"os"

	"github.com/rvoll/timelinehub/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
