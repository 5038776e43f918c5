package main

import (
	"os"

	"github.com/livemark/livemark/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
