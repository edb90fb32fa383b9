// Package main is the entry point for the loadtest binary.
package main

import (
	"os"

	"dataflow-loadtest/pkg/runner"
)

func main() {
	os.Exit(runner.Execute())
}
