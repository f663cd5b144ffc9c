package main

import (
	"os"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.New(version).Run(); err != nil {
		os.Exit(1)
	}
}
