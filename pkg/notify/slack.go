// Package notify posts access-leak reports to a Slack-style incoming
// webhook. It is wired into the session manager only when the leak policy
// is permissive and security.slack.enabled is set.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/baselayer/pkg/config"
	"github.com/platinummonkey/baselayer/pkg/session"
)

// SlackNotifier delivers leak reports to an incoming-webhook URL
type SlackNotifier struct {
	url    string
	client *http.Client
}

// NewSlackNotifier creates a notifier for a webhook URL
func NewSlackNotifier(url string) *SlackNotifier {
	return &SlackNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// FromConfig builds a notifier from security.slack.* settings; returns nil
// when the webhook is disabled
func FromConfig(cfg *config.Config) *SlackNotifier {
	if !cfg.Bool("security.slack.enabled", false) {
		return nil
	}
	url := cfg.String("security.slack.url", "")
	if url == "" {
		return nil
	}
	return NewSlackNotifier(url)
}

type slackMessage struct {
	Text string `json:"text"`
}

// NotifyLeak implements session.LeakNotifier
func (n *SlackNotifier) NotifyLeak(ctx context.Context, report session.LeakReport) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Access leak detected (request %s, principal %s)\n", report.RequestID, report.Principal)
	for _, v := range report.Violations {
		fmt.Fprintf(&sb, "- %s %s rows %v\n", v.Mode, v.Entity, v.PrimaryKeys)
	}
	sb.WriteString("```\n")
	sb.WriteString(report.Stack)
	sb.WriteString("```")

	body, err := json.Marshal(slackMessage{Text: sb.String()})
	if err != nil {
		return fmt.Errorf("failed to encode leak report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver leak report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
