package main

import (
	"os"

	"github.com/spaceflow-dev/spaceflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
