/*
main.go - casebook command entry point

COMMANDS:
  serve            Run the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  balance <id>     Print a profile's balance as JSON
  migrate-legacy   Move legacy authorization fields into history

EXAMPLES:
  # Run with a file database
  casebook serve --db ./data/casebook.db

  # Run against shared Redis
  CASEBOOK_STORE=redis CASEBOOK_REDIS_ADDR=redis:6379 casebook serve

  # Check a family's PTSV balance on a date
  casebook balance 3f2a... --service-type PTSV --as-of 2025-02-10

SEE ALSO:
  - config/config.go: Configuration keys and precedence
  - api/server.go: Router configuration
*/
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}
