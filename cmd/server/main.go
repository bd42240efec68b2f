/*
main.go - Application entry point

PURPOSE:
  Starts the OEE tracker: the HTTP API the PLC and dashboards talk to,
  plus the background line monitor. Subcommands cover shift lookup and
  OEE recomputation from the command line.

COMMANDS:
  oee-server [serve]                      Run the HTTP server (default)
  oee-server shift [--at RFC3339]         Print the shift window of an instant
  oee-server recompute --shift --date     Rebuild one shift's OEE record

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (10s timeout)
  3. Stop the line monitor
  4. Close the store

ENVIRONMENT:
  See config/config.go. APP_ENV=local loads a .env file first.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
