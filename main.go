package main

import (
	"os"

	"github.com/bluetuith-org/btprofiles/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
