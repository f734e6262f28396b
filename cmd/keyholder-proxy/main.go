package main

import (
	"os"

	"github.com/nethesis/keyholder/cmd/keyholder-proxy/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
