// Package provider abstracts the SMS vendors the service can send and
// receive through. Each vendor implements Provider; the webhook handler and
// executor only ever talk to the interface.
//
// Secrets (API keys, auth tokens) are read from the environment by each
// implementation and are never persisted. Non-secret configuration (sending
// number, account identifiers) lives in the config store as a JSON document
// validated against the provider's schema.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Inbound is a vendor-independent view of one received message. From and To
// are phone numbers as the vendor reported them; normalization is the
// caller's concern.
type Inbound struct {
	MessageID string
	From      string
	To        string
	Text      string
}

// ConfigField describes one provider setting for administrative surfaces.
// Readonly fields are sourced from the environment and shown but never
// written through the config store.
type ConfigField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Type        string `json:"type"` // "text", "phone", "secret"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Readonly    bool   `json:"readonly"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
}

// Provider is one SMS vendor integration.
type Provider interface {
	// Name is the human-readable vendor name, e.g. "Telnyx".
	Name() string

	// Slug is the stable lowercase identifier used in config keys and
	// audit source tags, e.g. "telnyx".
	Slug() string

	// Send delivers one outbound message. Implementations make exactly one
	// delivery attempt; retrying is the caller's decision.
	Send(ctx context.Context, to, text string) error

	// ValidateInbound authenticates an inbound webhook request. The body is
	// passed separately because the request body has already been read.
	ValidateInbound(r *http.Request, body []byte) error

	// ParseInbound extracts the message from an authenticated request.
	ParseInbound(r *http.Request, body []byte) (*Inbound, error)

	// ConfigFields lists the provider's settings for display.
	ConfigFields() []ConfigField

	// ConfigSchema is the JSON Schema the stored config document must
	// satisfy.
	ConfigSchema() string

	// WriteAck writes the vendor's expected webhook acknowledgement
	// envelope. status is a short machine token such as "ok" or
	// "unknown_user".
	WriteAck(w http.ResponseWriter, httpStatus int, status string)
}

// Registry holds the known providers. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a Registry from the given providers. Duplicate slugs
// are a programming error and panic.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		if _, dup := r.providers[p.Slug()]; dup {
			panic(fmt.Sprintf("provider: duplicate slug %q", p.Slug()))
		}
		r.providers[p.Slug()] = p
	}
	return r
}

// Get returns the provider registered under slug.
func (r *Registry) Get(slug string) (Provider, bool) {
	p, ok := r.providers[slug]
	return p, ok
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.providers))
	for s := range r.providers {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

// ValidateConfig checks a raw config document against the provider's
// schema before it is stored.
func ValidateConfig(p Provider, raw []byte) error {
	schema, err := jsonschema.CompileString(p.Slug()+"-config.json", p.ConfigSchema())
	if err != nil {
		return fmt.Errorf("provider: compile %s config schema: %w", p.Slug(), err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("provider: %s config is not valid JSON: %w", p.Slug(), err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("provider: %s config rejected: %w", p.Slug(), err)
	}
	return nil
}

// WriteJSONAck writes the JSON acknowledgement envelope shared by the
// vendors that do not require a custom format.
func WriteJSONAck(w http.ResponseWriter, httpStatus int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
