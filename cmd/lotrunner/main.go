package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		printUsage()
		os.Exit(0)
	}
	if os.Args[1] == "--version" {
		fmt.Println(versionLine())
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "status":
		os.Exit(statusCmd(os.Args[2:]))
	case "export":
		os.Exit(exportCmd(os.Args[2:]))
	case "version":
		fmt.Println(versionLine())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lotrunner

Usage:
  lotrunner <command> [flags]

Commands:
  run          Process pending lots against the portal
  status       Show the last run's state and cumulative metrics
  export       Rebuild the XLSX report and merged receipt PDF from the ledger
  version      Show version
  help         Show this message

Examples:
  # Full run with the dashboard on the default port
  lotrunner run -config lotrunner.json

  # Only lots 1-5 and 9
  lotrunner run -config lotrunner.json -lots 1-5,9

  # Where did the last run stop?
  lotrunner status -config lotrunner.json`)
}
