// Command chainrouterctl is the operator CLI for chainrouter: inspect
// ledger/failure/switcher state, simulate a decision, force a truncation
// out-of-band, or reset the day. Grounded on Tutu-Engine's cmd/tutu for the
// one-line Execute(version) entry point.
package main

import "github.com/chainrouter/chainrouter/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
