package main

import (
	"github.com/veloxpay/guestpay/cmd"
)

// main is the entry point for the GuestPay CLI application.
func main() {
	// Execute the root command defined in the cmd package. This handles all
	// command-line parsing, configuration, and execution.
	cmd.Execute()
}
