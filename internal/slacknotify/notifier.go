// Package slacknotify posts analysis run summaries to a Slack channel.
package slacknotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/slack-go/slack"

	"github.com/triagekit/triage/internal/metrics"
	"github.com/triagekit/triage/pkg/protocol"
)

// maxSectionText is Slack's limit for a section block's text.
const maxSectionText = 3000

// Config holds Slack notifier configuration.
type Config struct {
	BotToken string // xoxb-... Bot User OAuth Token
	Channel  string // channel ID or name to post into
}

// Notifier posts completed runs to one channel.
type Notifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Slack notifier. Extra client options are passed to
// slack.New, which lets tests point the client at a fake API.
func New(cfg Config, logger *slog.Logger, opts ...slack.Option) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack: bot_token is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("slack: channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		api:     slack.New(cfg.BotToken, opts...),
		channel: cfg.Channel,
		logger:  logger.With("component", "slack"),
	}, nil
}

// NotifyRun posts the run's summary and per-category counts.
func (n *Notifier) NotifyRun(ctx context.Context, run *protocol.AnalysisRun) error {
	if run == nil {
		return nil
	}
	title := fmt.Sprintf("Analysis run #%d: %d tickets", run.ID, len(run.TicketAnalyses))
	body := truncate(MarkdownToMrkdwn(run.Summary), maxSectionText)

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
	}
	if body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil))
	}
	if counts := countLine(run); counts != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, counts, false, false)))
	}

	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(title, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		metrics.SlackPostsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("slack: post run %d: %w", run.ID, err)
	}
	metrics.SlackPostsTotal.WithLabelValues("ok").Inc()
	n.logger.Info("run summary posted", "run", run.ID, "channel", n.channel, "ts", ts)
	return nil
}

// countLine renders "billing: 2 · bug: 1" sorted by category.
func countLine(run *protocol.AnalysisRun) string {
	counts := make(map[string]int)
	for _, ta := range run.TicketAnalyses {
		counts[ta.Category]++
	}
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s: %d", c, counts[c]))
	}
	return strings.Join(parts, " · ")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
