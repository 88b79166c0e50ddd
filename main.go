package main

import (
	"os"

	"github.com/bbmini/errdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
