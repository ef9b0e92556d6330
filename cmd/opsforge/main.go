// Command opsforge runs the OpsForge core service and its admin commands.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func dispatch(args []string) error {
	if len(args) == 0 {
		return runServer()
	}
	switch args[0] {
	case "serve":
		return runServer()
	case "migrate":
		return runMigrate(args[1:])
	case "hash-token":
		return runHashToken(args[1:])
	case "issue-token":
		return runIssueToken(args[1:])
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprint(os.Stderr, `Usage: opsforge [command]

Commands:
  serve          Run the API server (default)
  migrate        Apply or roll back database migrations (up | down [n] | version)
  hash-token     Print the bcrypt hash of an API token for auth.token_hash
  issue-token    Sign a bearer token with auth.jwt_secret
  help           Show this help message
`)
}
