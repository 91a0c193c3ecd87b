package main

import (
	"os"

	"fileman/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version, os.Args[1:], cli.StdStreams()))
}
