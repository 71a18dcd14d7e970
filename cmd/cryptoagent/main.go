package main

import (
	"os"

	"cryptoagent/cmd/cryptoagent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
