// Package main implements taskctl, the operational CLI for the taskstate
// service: cleanup of expired task records and full clears.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
