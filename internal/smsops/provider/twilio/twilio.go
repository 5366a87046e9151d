// Package twilio implements the Twilio SMS provider.
//
// Outbound messages go through the 2010-04-01 messages API with basic auth.
// Inbound webhooks carry an X-Twilio-Signature header: base64 HMAC-SHA1 of
// the public webhook URL followed by the sorted form parameters, keyed with
// the account auth token. The acknowledgement envelope is an empty TwiML
// response; replies are sent through the API, never inline.
package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
)

const (
	apiBase        = "https://api.twilio.com/2010-04-01"
	defaultTimeout = 15 * time.Second

	headerSignature = "X-Twilio-Signature"
)

// Config configures the Twilio provider.
type Config struct {
	// AccountSID identifies the Twilio account.
	AccountSID string

	// AuthToken authenticates API calls and keys the webhook signature.
	// Read from TWILIO_AUTH_TOKEN.
	AuthToken string

	// FromNumber is the sending number in E.164 format.
	FromNumber string

	// WebhookURL is the public URL Twilio posts inbound messages to. It
	// must match the URL configured in the Twilio console exactly, since
	// it is part of the signed payload. When empty the URL is
	// reconstructed from the request, which only works behind a proxy
	// that preserves Host and scheme.
	WebhookURL string

	// Endpoint overrides the API base, for tests.
	Endpoint string

	// Timeout is the HTTP request timeout. Defaults to 15 s.
	Timeout time.Duration
}

// Provider is the Twilio implementation of provider.Provider.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New returns a Twilio provider. The returned provider is safe for
// concurrent use.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = apiBase
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
func (p *Provider) Name() string { return "Twilio" }

// Slug implements provider.Provider.
func (p *Provider) Slug() string { return "twilio" }

// Send delivers one message through the Twilio API. Exactly one attempt is
// made.
func (p *Provider) Send(ctx context.Context, to, text string) error {
	if p.cfg.AccountSID == "" || p.cfg.AuthToken == "" || p.cfg.FromNumber == "" {
		return errors.New("twilio: not configured: account SID, auth token and from number are required")
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.cfg.Endpoint, p.cfg.AccountSID)
	form := url.Values{
		"From": {p.cfg.FromNumber},
		"To":   {to},
		"Body": {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: create request: %w", err)
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("twilio: read response: %w", err)
	}

	var out struct {
		SID     string `json:"sid"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("twilio: decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusCreated || out.SID == "" {
		detail := out.Message
		if detail == "" {
			detail = "unknown error"
		}
		return fmt.Errorf("twilio: send rejected (HTTP %d): %s", resp.StatusCode, detail)
	}
	return nil
}

// ValidateInbound implements provider.Provider.
func (p *Provider) ValidateInbound(r *http.Request, body []byte) error {
	if p.cfg.AuthToken == "" {
		return errors.New("twilio: not configured: auth token is required for webhook validation")
	}

	signature := r.Header.Get(headerSignature)
	if signature == "" {
		return errors.New("twilio: missing X-Twilio-Signature header")
	}

	params, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("twilio: parse webhook form: %w", err)
	}

	expected := computeSignature(p.webhookURL(r), params, p.cfg.AuthToken)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("twilio: signature verification failed")
	}
	return nil
}

func (p *Provider) webhookURL(r *http.Request) string {
	if p.cfg.WebhookURL != "" {
		return p.cfg.WebhookURL
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// computeSignature implements the Twilio request validation scheme: the URL
// concatenated with each form key and value in key-sorted order, HMAC-SHA1
// keyed with the auth token, base64 encoded.
func computeSignature(webhookURL string, params url.Values, authToken string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseInbound implements provider.Provider.
func (p *Provider) ParseInbound(r *http.Request, body []byte) (*provider.Inbound, error) {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("twilio: parse webhook form: %w", err)
	}

	return &provider.Inbound{
		MessageID: params.Get("MessageSid"),
		From:      params.Get("From"),
		To:        params.Get("To"),
		Text:      params.Get("Body"),
	}, nil
}

// ConfigFields implements provider.Provider.
func (p *Provider) ConfigFields() []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "account_sid",
			Label:       "Account SID",
			Type:        "text",
			Description: "Twilio Account SID.",
			Required:    true,
			Value:       p.cfg.AccountSID,
		},
		{
			Key:         "auth_token",
			Label:       "Auth Token",
			Type:        "secret",
			Description: "Twilio Auth Token. Read from TWILIO_AUTH_TOKEN.",
			Required:    true,
			Readonly:    true,
		},
		{
			Key:         "from_number",
			Label:       "From Phone Number",
			Type:        "phone",
			Description: "Twilio phone number in E.164 format.",
			Required:    true,
			Placeholder: "+14155551234",
			Value:       p.cfg.FromNumber,
		},
		{
			Key:         "webhook_url",
			Label:       "Webhook URL",
			Type:        "text",
			Description: "Public URL configured in the Twilio phone number settings.",
			Value:       p.cfg.WebhookURL,
		},
	}
}

// ConfigSchema implements provider.Provider.
func (p *Provider) ConfigSchema() string {
	return `{
	"type": "object",
	"required": ["account_sid", "from_number"],
	"properties": {
		"account_sid": {"type": "string", "minLength": 1},
		"from_number": {"type": "string", "pattern": "^\\+[0-9]{7,15}$"},
		"webhook_url": {"type": "string", "format": "uri"}
	},
	"additionalProperties": false
}`
}

// WriteAck writes an empty TwiML response. Twilio treats any non-empty
// message element as an inline reply, so the envelope stays empty and the
// actual reply goes through Send.
func (p *Provider) WriteAck(w http.ResponseWriter, httpStatus int, status string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(httpStatus)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)
}
