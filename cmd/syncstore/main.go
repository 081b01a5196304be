package main

import (
	"os"

	"github.com/watzon/syncstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
