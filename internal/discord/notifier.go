// Package discord delivers triggered alerts to Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"universalis-alerts/internal/model"
	"universalis-alerts/internal/trigger"
)

// NameResolver turns ids into display names.
type NameResolver interface {
	ItemName(ctx context.Context, itemID int32) (string, error)
	WorldName(ctx context.Context, worldID int32) (string, error)
}

// WebhookError is returned when Discord answers with a non-2xx status.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("discord webhook returned %d: %s", e.StatusCode, e.Body)
}

// Config holds notifier settings.
type Config struct {
	Timeout       time.Duration
	MarketBaseURL string
}

// Notifier posts alert embeds to the alert's webhook.
type Notifier struct {
	names      NameResolver
	httpClient *http.Client
	marketURL  string
}

// NewNotifier creates a notifier.
func NewNotifier(cfg Config, names NameResolver) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	marketURL := cfg.MarketBaseURL
	if marketURL == "" {
		marketURL = "https://universalis.app"
	}
	return &Notifier{
		names:      names,
		httpClient: &http.Client{Timeout: timeout},
		marketURL:  marketURL,
	}
}

// Notify sends one notification for a triggered alert. Alerts without a
// webhook are skipped without any network traffic. Delivery is attempted once.
func (n *Notifier) Notify(ctx context.Context, alert *model.UserAlert, rule *trigger.Rule, ev *model.MarketUpdateEvent, result float32) error {
	if !alert.HasEndpoint() {
		return nil
	}

	itemName, err := n.names.ItemName(ctx, ev.ItemID)
	if err != nil {
		return fmt.Errorf("failed to resolve item %d: %w", ev.ItemID, err)
	}
	worldName, err := n.names.WorldName(ctx, ev.WorldID)
	if err != nil {
		return fmt.Errorf("failed to resolve world %d: %w", ev.WorldID, err)
	}

	content := AlertEmbed{
		AlertName: alert.Name,
		ItemID:    ev.ItemID,
		ItemName:  itemName,
		WorldName: worldName,
		Trigger:   rule.String(),
		Value:     result,
	}
	payload := WebhookPayload{
		Embeds: []Embed{content.Build(MarketURL(n.marketURL, ev.ItemID, worldName))},
	}

	if err := n.post(ctx, alert.DiscordWebhook, payload); err != nil {
		return err
	}
	log.Printf("[Discord] Alert %d (%s) sent for %s on %s", alert.ID, alert.Name, itemName, worldName)
	return nil
}

func (n *Notifier) post(ctx context.Context, webhook string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WebhookError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
