package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/triagekit/triage/internal/analysis"
	"github.com/triagekit/triage/internal/apiclient"
	"github.com/triagekit/triage/internal/config"
	"github.com/triagekit/triage/internal/notify"
	"github.com/triagekit/triage/internal/session"
	"github.com/triagekit/triage/internal/ticketstore"
)

// clientFlags are shared by every command that talks to the server.
type clientFlags struct {
	configPath string
	url        string
	apiKey     string
	verbose    bool
}

func (f *clientFlags) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", os.Getenv("TRIAGE_CONFIG"), "Config file (JSON or YAML)")
	fs.StringVar(&f.url, "url", "", "Server URL")
	fs.StringVar(&f.apiKey, "api-key", "", "API key")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging")
}

// clientConfig resolves the client section from the config file or the
// environment, then applies flag overrides.
func (f *clientFlags) clientConfig() (config.ClientConfig, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return config.ClientConfig{}, err
	}
	cc := cfg.Client
	if f.url != "" {
		cc.APIURL = f.url
	}
	if f.apiKey != "" {
		cc.APIKey = f.apiKey
	}
	return cc, nil
}

func (f *clientFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// app is the client-side state for one command invocation.
type app struct {
	cfg     config.ClientConfig
	api     *apiclient.Client
	tickets *ticketstore.Store
	runs    *analysis.Reconciler
	notes   *notify.Queue
	sess    *session.Session
	logger  *slog.Logger
}

func (f *clientFlags) newApp() (*app, error) {
	cc, err := f.clientConfig()
	if err != nil {
		return nil, err
	}
	logger := f.logger(os.Stderr)
	api := apiclient.New(cc.APIURL, apiclient.WithAPIKey(cc.APIKey), apiclient.WithTimeout(cc.Timeout()))
	tickets := ticketstore.New(api, logger)
	runs := analysis.New(api, tickets, logger)
	notes := notify.New(notify.WithDefaultDuration(cc.NotificationDuration()))
	return &app{
		cfg:     cc,
		api:     api,
		tickets: tickets,
		runs:    runs,
		notes:   notes,
		sess:    session.New(tickets, runs, notes, logger),
		logger:  logger,
	}, nil
}

// flush prints and clears pending notifications. Errors and warnings go to
// stderr.
func (a *app) flush() {
	for _, n := range a.notes.List() {
		w := os.Stdout
		if n.Kind == notify.Error || n.Kind == notify.Warning {
			w = os.Stderr
		}
		fmt.Fprintln(w, noteLine(n))
		a.notes.Dismiss(n.ID)
	}
}

func (a *app) close() {
	a.flush()
	a.notes.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
