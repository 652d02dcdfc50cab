package main

import (
	"os"

	"github.com/solatis/dupmatch/cmd/dupmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
