package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "health":
		err = cmdHealth(os.Args[2:])
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: triagectl tickets <list|create>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			err = cmdTicketsList(os.Args[3:])
		case "create":
			err = cmdTicketsCreate(os.Args[3:])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "latest":
		err = cmdLatest(os.Args[2:])
	case "logs":
		err = cmdLogs(os.Args[2:])
	case "tui":
		err = cmdTUI(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: triagectl config validate <path>")
			os.Exit(1)
		}
		err = cmdConfigValidate(os.Args[3])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("triagectl: support ticket intake and analysis")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                 Check server health")
	fmt.Println("  tickets list           List tickets (--status pending|analyzed, --json)")
	fmt.Println("  tickets create         Create tickets from --file, --text or stdin")
	fmt.Println("  analyze                Analyze pending tickets (--ids 1,2)")
	fmt.Println("  latest                 Show the latest analysis run (--json)")
	fmt.Println("  logs                   Show server logs (--level, --component, --limit)")
	fmt.Println("  tui                    Open the interactive dashboard")
	fmt.Println("  config validate <p>    Validate a config file")
	fmt.Println()
	fmt.Println("Client flags (all commands except config):")
	fmt.Println("  -c, --config <path>    Config file for the client section")
	fmt.Println("  --url <url>            Server URL (default: http://localhost:8000)")
	fmt.Println("  --api-key <key>        API key for authentication")
	fmt.Println("  -v, --verbose          Debug logging on stderr")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TRIAGE_API_URL         Server URL")
	fmt.Println("  TRIAGE_CLIENT_API_KEY  API key for authentication")
}
