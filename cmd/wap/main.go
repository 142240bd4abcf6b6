// Package main is the entry point for the wap binary.
package main

import (
	"os"

	"lake-wap/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
