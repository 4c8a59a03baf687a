package main

import (
	"fmt"
	"os"

	"github.com/al002/ztracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Program execute failed: %v\n", err)
		os.Exit(1)
	}
}
