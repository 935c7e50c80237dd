package notify

import (
	"context"
	"net/http"
	"time"
)

// Embed colours per outcome.
var discordColors = map[string]int{
	"payment_completed":   0x2e7d32,
	"payment_failed":      0xc62828,
	"negotiation_aborted": 0xf9a825,
	"not_capable":         0x546e7a,
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

// Send posts msg as a single embed.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	e := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       discordColors[msg.Event],
	}
	e.Footer.Text = msg.Event
	if !msg.At.IsZero() {
		e.Timestamp = msg.At.Format(time.RFC3339)
	}
	return postJSON(ctx, d.client, d.webhookURL, map[string]any{
		"embeds": []discordEmbed{e},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
