// Package main provides the rqg release quality gate CLI.
package main

import (
	"errors"
	"os"

	"github.com/leapstack-labs/rqg/internal/cli"
)

// exitStatuser is implemented by errors that carry a process exit code.
type exitStatuser interface {
	ExitStatus() int
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := cli.Execute(); err != nil {
		var es exitStatuser
		if errors.As(err, &es) {
			return es.ExitStatus()
		}
		return 1
	}
	return 0
}
