// Package notify provides an incoming-webhook client for community announcements.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/pkg/logger"
)

const sendTimeout = 10 * time.Second

// Client posts messages to a Mattermost/Slack compatible incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new webhook client.
func NewClient(cfg *config.NotificationsConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		username:   cfg.Username,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: sendTimeout},
		log:        log.Component("notify"),
	}
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Message represents a webhook message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to the webhook. It is a no-op when notifications are disabled.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = c.username
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// AchievementUnlocked announces that a user unlocked an achievement.
func (c *Client) AchievementUnlocked(ctx context.Context, user *models.User, achievement *models.Achievement) error {
	icon := achievement.Icon
	if icon == "" {
		icon = "🏆"
	}

	text := fmt.Sprintf("%s **@%s** unlocked **%s**", icon, user.Username, achievement.Name)
	if achievement.Description != "" {
		text += fmt.Sprintf("\n_%s_", achievement.Description)
	}

	return c.SendMessage(ctx, &Message{Text: text})
}

// DigestEntry is one line of the daily digest.
type DigestEntry struct {
	Username string
	XP       int64
	Level    int
}

// SendDailyDigest posts the top earners of a day. An empty digest is not sent.
func (c *Client) SendDailyDigest(ctx context.Context, day time.Time, entries []DigestEntry) error {
	if len(entries) == 0 {
		c.log.Debug().Msg("No XP earned, skipping daily digest")
		return nil
	}

	return c.SendMessage(ctx, &Message{Text: FormatDigest(day, entries)})
}

// FormatDigest renders the daily digest text.
func FormatDigest(day time.Time, entries []DigestEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### 🌱 Top growers for %s\n\n", day.Format("Monday, January 2"))

	for i, e := range entries {
		medal := fmt.Sprintf("%d.", i+1)
		switch i {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		fmt.Fprintf(&b, "%s **@%s** earned %d XP (level %d)\n", medal, e.Username, e.XP, e.Level)
	}

	b.WriteString("\n_Keep growing!_")
	return b.String()
}
