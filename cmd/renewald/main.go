/*
main.go - Application entry point

PURPOSE:
  Command line of the renewal engine. Serves the HTTP API and offers
  one-shot commands for operators.

COMMANDS:
  renewald serve                             Run the HTTP API and roller
  renewald balance --user U --right R        Print one beneficiary as JSON
  renewald roll                              Append missing renewals once

CONFIGURATION:
  --config points at a YAML file; without it renewald.yaml is read from the
  working directory when present. Every key can be overridden through
  RENEWAL_* environment variables, e.g. RENEWAL_STORAGE_PATH=":memory:".

SEE ALSO:
  - app.go: Dependency wiring
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
