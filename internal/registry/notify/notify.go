// Package notify delivers chat-webhook notifications.
//
// Delivery is fire and forget: callers log failures and move on, the
// pipeline's data state never depends on a notification arriving.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Level selects the embed accent color.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelDanger  Level = "danger"
	LevelSuccess Level = "success"
)

var levelColors = map[Level]int{
	LevelInfo:    0x0068ff,
	LevelDanger:  0xff0000,
	LevelSuccess: 0x00f97d,
}

// Message is one notification.
type Message struct {
	Title   string
	Content string
	Level   Level
}

// Notifier posts messages to a chat webhook URL.
type Notifier struct {
	url        string
	username   string
	httpClient *http.Client
}

type options struct {
	httpClient *http.Client
}

// Option overrides Notifier default values.
type Option func(*options)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New creates a Notifier posting to url. An empty url disables delivery:
// Notify becomes a no-op.
func New(url, username string, args ...Option) *Notifier {
	opts := options{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, arg := range args {
		arg(&opts)
	}

	return &Notifier{
		url:        url,
		username:   username,
		httpClient: opts.httpClient,
	}
}

type embed struct {
	Title       string      `json:"title"`
	Color       int         `json:"color"`
	Description string      `json:"description"`
	Footer      embedFooter `json:"footer"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

// Notify posts one message to the webhook.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if n.url == "" {
		return nil
	}

	color, ok := levelColors[msg.Level]
	if !ok {
		color = levelColors[LevelInfo]
	}
	body, err := json.Marshal(webhookPayload{
		Username: n.username,
		Embeds: []embed{{
			Title:       msg.Title,
			Color:       color,
			Description: msg.Content,
			Footer:      embedFooter{Text: n.username},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}
