// Package telnyx implements the Telnyx SMS provider.
//
// Outbound messages go through the v2 messages API with a bearer token.
// Inbound webhooks are signed with Ed25519 over "timestamp|body"; when a
// public key is configured the signature is verified, otherwise only the
// presence of the signature headers is required.
package telnyx

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
)

const (
	apiEndpoint    = "https://api.telnyx.com/v2/messages"
	defaultTimeout = 15 * time.Second

	headerSignature = "Telnyx-Signature-Ed25519"
	headerTimestamp = "Telnyx-Timestamp"
)

// Config configures the Telnyx provider.
type Config struct {
	// APIKey is the bearer token, read from TELNYX_API_KEY.
	APIKey string

	// FromNumber is the sending number in E.164 format.
	FromNumber string

	// PublicKey is the base64-encoded Ed25519 webhook public key from the
	// Telnyx portal. Optional; when empty, inbound validation only checks
	// that the signature headers are present.
	PublicKey string

	// Endpoint overrides the API endpoint, for tests.
	Endpoint string

	// Timeout is the HTTP request timeout. Defaults to 15 s.
	Timeout time.Duration
}

// Provider is the Telnyx implementation of provider.Provider.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New returns a Telnyx provider. The returned provider is safe for
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
func (p *Provider) Name() string { return "Telnyx" }

// Slug implements provider.Provider.
func (p *Provider) Slug() string { return "telnyx" }

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Send delivers one message through the Telnyx API. Exactly one attempt is
// made.
func (p *Provider) Send(ctx context.Context, to, text string) error {
	if p.cfg.APIKey == "" || p.cfg.FromNumber == "" {
		return errors.New("telnyx: not configured: API key and from number are required")
	}

	data, err := json.Marshal(sendRequest{From: p.cfg.FromNumber, To: to, Text: text})
	if err != nil {
		return fmt.Errorf("telnyx: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("telnyx: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("telnyx: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telnyx: read response: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("telnyx: decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || out.Data.ID == "" {
		detail := "unknown error"
		if len(out.Errors) > 0 {
			detail = out.Errors[0].Detail
		}
		return fmt.Errorf("telnyx: send rejected (HTTP %d): %s", resp.StatusCode, detail)
	}
	return nil
}

// ValidateInbound implements provider.Provider.
func (p *Provider) ValidateInbound(r *http.Request, body []byte) error {
	signature := r.Header.Get(headerSignature)
	timestamp := r.Header.Get(headerTimestamp)
	if signature == "" || timestamp == "" {
		return errors.New("telnyx: missing signature headers")
	}

	if p.cfg.PublicKey == "" {
		return nil
	}

	pub, err := base64.StdEncoding.DecodeString(p.cfg.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.New("telnyx: invalid public key configured")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.New("telnyx: malformed signature header")
	}

	signed := append([]byte(timestamp+"|"), body...)
	if !ed25519.Verify(ed25519.PublicKey(pub), signed, sig) {
		return errors.New("telnyx: signature verification failed")
	}
	return nil
}

type webhookEvent struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"to"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseInbound implements provider.Provider. Events other than
// message.received yield an error so the webhook can acknowledge and drop
// them.
func (p *Provider) ParseInbound(r *http.Request, body []byte) (*provider.Inbound, error) {
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("telnyx: decode webhook: %w", err)
	}
	if ev.Data.EventType != "message.received" {
		return nil, fmt.Errorf("telnyx: ignoring event type %q", ev.Data.EventType)
	}

	in := &provider.Inbound{
		MessageID: ev.Data.Payload.ID,
		From:      ev.Data.Payload.From.PhoneNumber,
		Text:      ev.Data.Payload.Text,
	}
	if len(ev.Data.Payload.To) > 0 {
		in.To = ev.Data.Payload.To[0].PhoneNumber
	}
	return in, nil
}

// ConfigFields implements provider.Provider.
func (p *Provider) ConfigFields() []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "api_key",
			Label:       "API Key",
			Type:        "secret",
			Description: `Telnyx API key (starts with "KEY"). Read from TELNYX_API_KEY.`,
			Required:    true,
			Readonly:    true,
		},
		{
			Key:         "from_number",
			Label:       "From Phone Number",
			Type:        "phone",
			Description: "Telnyx phone number in E.164 format.",
			Required:    true,
			Placeholder: "+14155551234",
			Value:       p.cfg.FromNumber,
		},
		{
			Key:         "public_key",
			Label:       "Webhook Public Key",
			Type:        "text",
			Description: "Base64 Ed25519 public key for webhook signature verification. Optional.",
			Value:       p.cfg.PublicKey,
		},
	}
}

// ConfigSchema implements provider.Provider.
func (p *Provider) ConfigSchema() string {
	return `{
	"type": "object",
	"required": ["from_number"],
	"properties": {
		"from_number": {"type": "string", "pattern": "^\\+[0-9]{7,15}$"},
		"public_key": {"type": "string"}
	},
	"additionalProperties": false
}`
}

// WriteAck implements provider.Provider with the shared JSON envelope.
func (p *Provider) WriteAck(w http.ResponseWriter, httpStatus int, status string) {
	provider.WriteJSONAck(w, httpStatus, status)
}
