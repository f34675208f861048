package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/triagekit/triage/internal/analyzer"
	apiPkg "github.com/triagekit/triage/internal/api"
	"github.com/triagekit/triage/internal/config"
	"github.com/triagekit/triage/internal/logbuf"
	"github.com/triagekit/triage/internal/provider"
	"github.com/triagekit/triage/internal/scheduler"
	"github.com/triagekit/triage/internal/slacknotify"
	"github.com/triagekit/triage/internal/ticket"
)

func main() {
	flags := pflag.NewFlagSet("triaged", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", os.Getenv("TRIAGE_CONFIG"), "Path to config file (JSON or YAML)")
	configURL := flags.String("config-url", os.Getenv("TRIAGE_CONFIG_URL"), "Fetch config from this URL")
	configKey := flags.String("config-key", os.Getenv("TRIAGE_CONFIG_KEY"), "Bearer token for --config-url")
	dataDir := flags.String("data-dir", "", "Override server.data_dir")
	verbose := flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.Parse(os.Args[1:])

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})

	// Load config (3 modes: file, remote, env)
	var cfg *config.Config
	var err error
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *configURL != "":
		cfg, err = config.LoadRemote(context.Background(), config.RemoteOptions{
			URL:     *configURL,
			APIKey:  *configKey,
			DataDir: *dataDir,
		})
	default:
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		slog.New(jsonHandler).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Server.DataDir = *dataDir
	}

	logBuf := logbuf.New(cfg.Server.LogBuffer)
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	logger.Info("triaged starting", "data_dir", cfg.Server.DataDir)

	// 1. Open the ticket store
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "path", cfg.Server.DataDir, "error", err)
		os.Exit(1)
	}
	store, err := ticket.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		logger.Error("failed to open ticket store", "path", cfg.DBPath(), "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 2. Analyzer, with an LLM provider when configured
	opts := []analyzer.Option{
		analyzer.WithConcurrency(cfg.Analysis.Concurrency),
		analyzer.WithLogger(logger),
	}
	if p := cfg.Analysis.Provider; p != nil {
		prov, err := provider.New(provider.Config{Type: p.Type, APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model})
		if err != nil {
			logger.Error("failed to init provider", "error", err)
			os.Exit(1)
		}
		opts = append(opts, analyzer.WithProvider(prov))
		logger.Info("provider initialized", "type", prov.Name(), "model", p.Model)
	} else {
		logger.Info("no provider configured, using keyword classification")
	}
	an := analyzer.New(store, opts...)

	// 3. Slack notifications
	var notifier *slacknotify.Notifier
	if cfg.Slack != nil {
		notifier, err = slacknotify.New(slacknotify.Config{
			BotToken: cfg.Slack.BotToken,
			Channel:  cfg.Slack.Channel,
		}, logger)
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		logger.Info("slack notifications enabled", "channel", cfg.Slack.Channel)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// 4. Start API server
	serverOpts := []apiPkg.Option{apiPkg.WithLogs(logBuf)}
	if notifier != nil {
		serverOpts = append(serverOpts, apiPkg.WithRunNotifier(notifier))
	}
	apiSrv := apiPkg.NewServer(store, an, apiPkg.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Key:  cfg.Server.APIKey,
	}, logger, serverOpts...)

	wg.Add(1)
	go safeGo(logger, "api-server", func() {
		defer wg.Done()
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
			cancel()
		}
	})

	// 5. Scheduled analysis
	if cfg.Analysis.Schedule != "" {
		var runNotifier scheduler.RunNotifier
		if notifier != nil {
			runNotifier = notifier
		}
		sched := scheduler.New(an, runNotifier, logger)
		if err := sched.AddJob("analysis", cfg.Analysis.Schedule); err != nil {
			logger.Error("failed to schedule analysis", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go safeGo(logger, "scheduler", func() {
			defer wg.Done()
			sched.Start(ctx)
		})
	}

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	logger.Info("triaged stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
