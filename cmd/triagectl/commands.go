package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/triagekit/triage/internal/apiclient"
	"github.com/triagekit/triage/internal/config"
	"github.com/triagekit/triage/internal/markdown"
	"github.com/triagekit/triage/internal/tui"
	"github.com/triagekit/triage/pkg/protocol"
)

func newFlagSet(name string) (*pflag.FlagSet, *clientFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cf := &clientFlags{}
	cf.AddFlags(fs)
	return fs, cf
}

func cmdHealth(args []string) error {
	fs, cf := newFlagSet("health")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	status, err := a.api.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", a.api.BaseURL(), status)
	return nil
}

func cmdTicketsList(args []string) error {
	fs, cf := newFlagSet("tickets list")
	status := fs.String("status", "", "Only list tickets with this status (pending or analyzed)")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *status != "" && !protocol.TicketStatus(*status).Valid() {
		return fmt.Errorf("invalid status %q", *status)
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.sess.Refresh(ctx); err != nil {
		return err
	}
	var tickets []protocol.Ticket
	switch protocol.TicketStatus(*status) {
	case protocol.TicketPending:
		tickets = a.tickets.Pending()
	case protocol.TicketAnalyzed:
		tickets = a.tickets.Analyzed()
	default:
		tickets = a.tickets.All()
	}
	if *asJSON {
		return printJSON(os.Stdout, tickets)
	}
	fmt.Println(ticketTable(tickets))
	return nil
}

func cmdTicketsCreate(args []string) error {
	fs, cf := newFlagSet("tickets create")
	file := fs.StringP("file", "f", "", "JSON, YAML or text file of tickets")
	text := fs.StringP("text", "t", "", "Freeform tickets separated by blank lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file != "" && *text != "" {
		return errors.New("--file and --text are mutually exclusive")
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	var created []protocol.Ticket
	switch {
	case *file != "":
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		created, err = a.sess.SubmitFile(ctx, filepath.Base(*file), data)
		if err != nil {
			return err
		}
	default:
		input := *text
		if input == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			input = string(data)
		}
		created, err = a.sess.SubmitText(ctx, input)
		if err != nil {
			return err
		}
	}
	a.flush()
	fmt.Println(ticketTable(created))
	return nil
}

func cmdAnalyze(args []string) error {
	fs, cf := newFlagSet("analyze")
	ids := fs.Int64Slice("ids", nil, "Ticket ids to analyze (default: all pending)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	run, err := a.sess.Analyze(ctx, *ids...)
	if err != nil {
		return err
	}
	a.flush()
	fmt.Print(runReport(run, terminalWidth()))
	return nil
}

func cmdLatest(args []string) error {
	fs, cf := newFlagSet("latest")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	run, err := a.runs.LoadLatest(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("No analysis runs yet")
		return nil
	}
	if *asJSON {
		return printJSON(os.Stdout, run)
	}
	fmt.Print(runReport(run, terminalWidth()))
	return nil
}

func cmdLogs(args []string) error {
	fs, cf := newFlagSet("logs")
	level := fs.String("level", "", "Minimum level (debug, info, warn, error)")
	component := fs.String("component", "", "Only this component")
	contains := fs.StringP("grep", "g", "", "Only messages containing this text")
	limit := fs.IntP("limit", "n", 100, "Maximum number of entries")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 10m)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := cf.newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	q := apiclient.LogQuery{Level: *level, Component: *component, Contains: *contains, Limit: *limit}
	if *since > 0 {
		q.Since = time.Now().Add(-*since)
	}
	entries, err := a.api.Logs(ctx, q)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Println(logLine(e))
	}
	return nil
}

func cmdTUI(args []string) error {
	fs, cf := newFlagSet("tui")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cc, err := cf.clientConfig()
	if err != nil {
		return err
	}

	// The dashboard owns the terminal; logs go to a file when requested.
	logOut := io.Discard
	if cf.verbose {
		f, err := os.OpenFile("triagectl.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}

	ctx, cancel := signalContext()
	defer cancel()

	api := apiclient.New(cc.APIURL, apiclient.WithAPIKey(cc.APIKey), apiclient.WithTimeout(cc.Timeout()))
	return tui.Run(ctx, api, tui.Options{
		PendingPageSize:      cc.PendingPageSize,
		AnalyzedPageSize:     cc.AnalyzedPageSize,
		NotificationDuration: cc.NotificationDuration(),
		Logger:               cf.logger(logOut),
	})
}

func cmdConfigValidate(path string) error {
	if _, err := config.Load(path); err != nil {
		fmt.Printf("invalid: %v\n", err)
		return err
	}
	fmt.Println("config is valid")
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runReport renders a run summary as terminal markdown followed by its
// per-ticket classifications.
func runReport(run *protocol.AnalysisRun, width int) string {
	return markdown.Render(runMarkdown(run), width)
}
