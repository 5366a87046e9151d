// Package textbelt implements the Textbelt SMS provider.
//
// Textbelt has no webhook signatures; inbound validation is structural
// (required JSON fields present). Reply webhooks only work for US numbers.
package textbelt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
)

const (
	apiEndpoint    = "https://textbelt.com/text"
	defaultTimeout = 15 * time.Second
)

// Config configures the Textbelt provider.
type Config struct {
	// APIKey is the Textbelt key, read from TEXTBELT_API_KEY.
	APIKey string

	// ReplyWebhookURL, when set, is passed on every send so Textbelt
	// delivers replies back to us.
	ReplyWebhookURL string

	// Endpoint overrides the API endpoint, for tests.
	Endpoint string

	// Timeout is the HTTP request timeout. Defaults to 15 s.
	Timeout time.Duration
}

// Provider is the Textbelt implementation of provider.Provider.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New returns a Textbelt provider. The returned provider is safe for
// concurrent use.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = apiEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "Textbelt" }

// Slug implements provider.Provider.
func (p *Provider) Slug() string { return "textbelt" }

// Send delivers one message through the Textbelt API. Exactly one attempt
// is made.
func (p *Provider) Send(ctx context.Context, to, text string) error {
	if p.cfg.APIKey == "" {
		return errors.New("textbelt: not configured: API key is required")
	}

	form := url.Values{
		"phone":   {to},
		"message": {text},
		"key":     {p.cfg.APIKey},
	}
	if p.cfg.ReplyWebhookURL != "" {
		form.Set("replyWebhookUrl", p.cfg.ReplyWebhookURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("textbelt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("textbelt: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("textbelt: read response: %w", err)
	}

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("textbelt: decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !out.Success {
		detail := out.Error
		if detail == "" {
			detail = "unknown error"
		}
		return fmt.Errorf("textbelt: send rejected: %s", detail)
	}
	return nil
}

type replyWebhook struct {
	TextID     string `json:"textId"`
	FromNumber string `json:"fromNumber"`
	Text       string `json:"text"`
}

// ValidateInbound implements provider.Provider. Textbelt does not sign
// webhooks, so validation checks that the required fields are present.
func (p *Provider) ValidateInbound(r *http.Request, body []byte) error {
	var wh replyWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return fmt.Errorf("textbelt: decode webhook: %w", err)
	}
	if wh.FromNumber == "" || wh.Text == "" {
		return errors.New("textbelt: webhook missing fromNumber or text")
	}
	return nil
}

// ParseInbound implements provider.Provider.
func (p *Provider) ParseInbound(r *http.Request, body []byte) (*provider.Inbound, error) {
	var wh replyWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("textbelt: decode webhook: %w", err)
	}
	return &provider.Inbound{
		MessageID: wh.TextID,
		From:      wh.FromNumber,
		Text:      wh.Text,
	}, nil
}

// ConfigFields implements provider.Provider.
func (p *Provider) ConfigFields() []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "api_key",
			Label:       "API Key",
			Type:        "secret",
			Description: "Textbelt API key. Read from TEXTBELT_API_KEY.",
			Required:    true,
			Readonly:    true,
		},
		{
			Key:         "reply_webhook_url",
			Label:       "Reply Webhook URL",
			Type:        "text",
			Description: "Public URL for inbound replies (US numbers only).",
			Value:       p.cfg.ReplyWebhookURL,
		},
	}
}

// ConfigSchema implements provider.Provider.
func (p *Provider) ConfigSchema() string {
	return `{
	"type": "object",
	"properties": {
		"reply_webhook_url": {"type": "string", "format": "uri"}
	},
	"additionalProperties": false
}`
}

// WriteAck implements provider.Provider with the shared JSON envelope.
func (p *Provider) WriteAck(w http.ResponseWriter, httpStatus int, status string) {
	provider.WriteJSONAck(w, httpStatus, status)
}
