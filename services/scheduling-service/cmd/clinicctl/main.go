// Command clinicctl manages a clinic's schedule from the terminal: working
// hours, exceptions, holiday sync, slots, and booking.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, nil).Execute(); err != nil {
		os.Exit(1)
	}
}
