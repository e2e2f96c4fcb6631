package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

const (
	// Colors for Discord embeds
	colorRed   = 15158332 // 0xE74C3C - zero-success runs and rejected keys
	colorGreen = 5763719  // 0x57F287 - for success

	// Default timeout for webhook requests
	defaultWebhookTimeout = 10 * time.Second

	// Max retries for rate limiting
	maxRetries = 3
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// RunSummary is what a finished collection run reports.
type RunSummary struct {
	Platform         string
	Tier             string
	PlayersRequested int
	PlayersSucceeded int
	MatchesRequested int
	MatchesFetched   int
	MatchesSkipped   int
	Records          int
	Rows             int
	Duration         time.Duration
	Artifact         string
	FinishedAt       time.Time
	Err              error // fatal error that ended the run early, if any
}

// Failed reports whether the run should be flagged: it ended on an error,
// asked for matches and got none, or filtered every record out.
func (s RunSummary) Failed() bool {
	return s.Err != nil || (s.MatchesRequested > 0 && s.MatchesFetched == 0) ||
		(s.PlayersRequested > 0 && s.PlayersSucceeded == 0) || s.FilteredOut()
}

// FilteredOut reports whether records were parsed but no row survived the
// filters, so no CSV was written.
func (s RunSummary) FilteredOut() bool {
	return s.Records > 0 && s.Rows == 0
}

// NewRunSummaryPayload creates a green embed for a successful run and a red
// one with an @here mention for a failed run.
func NewRunSummaryPayload(s RunSummary) WebhookPayload {
	embed := Embed{
		Title: fmt.Sprintf("✅ Collection Finished (%s %s)", s.Platform, s.Tier),
		Color: colorGreen,
		Fields: []EmbedField{
			{Name: "Players", Value: formatRatio(s.PlayersSucceeded, s.PlayersRequested), Inline: true},
			{Name: "Matches", Value: formatRatio(s.MatchesFetched, s.MatchesRequested), Inline: true},
			{Name: "Already Seen", Value: formatNumber(s.MatchesSkipped), Inline: true},
			{Name: "Records", Value: formatNumber(s.Records), Inline: true},
			{Name: "Rows", Value: formatNumber(s.Rows), Inline: true},
			{Name: "Runtime", Value: formatDuration(s.Duration), Inline: true},
		},
	}
	if !s.FinishedAt.IsZero() {
		embed.Timestamp = s.FinishedAt.UTC().Format(time.RFC3339)
	}
	if s.Artifact != "" {
		embed.Footer = &EmbedFooter{Text: s.Artifact}
	}

	payload := WebhookPayload{}
	if s.Failed() {
		payload.Content = "@here Collection run failed"
		embed.Title = fmt.Sprintf("❌ Collection Failed (%s %s)", s.Platform, s.Tier)
		embed.Color = colorRed
		switch {
		case s.Err != nil:
			embed.Description = s.Err.Error()
		case s.FilteredOut():
			embed.Description = fmt.Sprintf("All %s records were removed by the filters; no CSV was written.", formatNumber(s.Records))
		default:
			embed.Description = "No matches were fetched successfully."
		}
	}
	payload.Embeds = []Embed{embed}
	return payload
}

// NewKeyRejectedPayload creates a payload for a rejected API key.
func NewKeyRejectedPayload(apiKey, platform string) WebhookPayload {
	return WebhookPayload{
		Content: "@here API Key Rejected!",
		Embeds: []Embed{
			{
				Title: "🔑 API Key Rejected",
				Color: colorRed,
				Fields: []EmbedField{
					{Name: "Key", Value: maskAPIKey(apiKey), Inline: true},
					{Name: "Platform", Value: platform, Inline: true},
				},
				Footer: &EmbedFooter{
					Text: "Update RIOT_API_KEY before the next scheduled run",
				},
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// SendRunSummary posts the summary of a collection run.
func (c *WebhookClient) SendRunSummary(ctx context.Context, s RunSummary) error {
	return c.sendPayload(ctx, NewRunSummaryPayload(s))
}

// SendKeyRejected posts a rejected-key alert.
func (c *WebhookClient) SendKeyRejected(ctx context.Context, apiKey, platform string) error {
	return c.sendPayload(ctx, NewKeyRejectedPayload(apiKey, platform))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return errors.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "request failed")
		}
		resp.Body.Close()

		// Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := time.Second
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				waitDuration = time.Duration(seconds) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		return errors.Newf("webhook request failed with status %d", resp.StatusCode)
	}

	return errors.Newf("webhook request failed after %d retries", maxRetries)
}

// formatNumber formats a number with commas (e.g., 47832 -> "47,832")
func formatNumber(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}

	s := strconv.Itoa(n)
	var result bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

func formatRatio(ok, requested int) string {
	return formatNumber(ok) + " / " + formatNumber(requested)
}

// formatDuration formats a duration as "Xh Ym" (e.g., 18h 32m), or "Xm Ys"
// under an hour
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// maskAPIKey masks an API key for display (e.g., "RGAPI-xxxx-xxxx" -> "RGAPI...xxxx")
func maskAPIKey(key string) string {
	if len(key) <= 10 {
		return "****"
	}
	return key[:5] + "..." + key[len(key)-4:]
}
