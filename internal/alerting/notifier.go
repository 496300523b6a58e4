package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Event classifies pipeline incidents worth paging on.
type Event string

const (
	EventCurveBuildFailed Event = "curve_build_failed"
	EventDegenerateCurve  Event = "degenerate_curve"
	EventDataQuality      Event = "data_quality"
	EventForecastFailed   Event = "forecast_failed"
)

// Notification carries the alert context for one pipeline incident.
type Notification struct {
	Event    Event
	Product  string
	Occurred time.Time
	Summary  string
	Detail   string
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages over the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered text through the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("event", string(note.Event)).
		Str("product", note.Product).
		Msg("alert delivered (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[pulpwatcher alert]\n")
	builder.WriteString(fmt.Sprintf("Event: %s\n", note.Event))
	if note.Product != "" {
		builder.WriteString(fmt.Sprintf("Product: %s\n", note.Product))
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.Occurred.UTC().Format(time.RFC3339)))
	if note.Summary != "" {
		builder.WriteString(fmt.Sprintf("Summary: %s\n", note.Summary))
	}
	if note.Detail != "" {
		builder.WriteString(note.Detail)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
