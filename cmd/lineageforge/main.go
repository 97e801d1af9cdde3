package main

import (
	"os"

	"lineageforge/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Stderr))
}
