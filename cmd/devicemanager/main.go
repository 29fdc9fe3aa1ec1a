// Command devicemanager runs a node-local device manager: it plans
// deployment from a node profile, launches and tracks its children,
// registers with the domain, and drives escalating shutdown on
// request. See internal/supervisor for the coordinator this command
// wires together.
package main

import (
	"fmt"
	"os"

	"github.com/sgnls/devicemanager/cmd/devicemanager/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
