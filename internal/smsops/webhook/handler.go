// Package webhook receives inbound SMS from the configured provider,
// dispatches the message through the dialogue orchestrator, and sends the
// reply back through the same provider.
//
// The handler answers with the provider's acknowledgement envelope: JSON
// for most vendors, empty TwiML for Twilio. Recognized outcomes, including
// unknown or unauthorized senders, acknowledge with HTTP 200 and a status
// token; non-2xx is reserved for structurally invalid requests, failed
// signature validation, and missing provider configuration.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sierra-tahoe/smsops/common/redact"
	"github.com/sierra-tahoe/smsops/common/trace"
	"github.com/sierra-tahoe/smsops/internal/smsops/audit"
	"github.com/sierra-tahoe/smsops/internal/smsops/dialogue"
	"github.com/sierra-tahoe/smsops/internal/smsops/identity"
	"github.com/sierra-tahoe/smsops/internal/smsops/observability"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
	"github.com/sierra-tahoe/smsops/internal/smsops/settings"
)

// DefaultRateLimit is the default maximum number of inbound messages per
// sender per minute when no explicit limit is configured.
const DefaultRateLimit = 30

// maxBodyBytes caps inbound webhook request bodies to prevent memory
// exhaustion from oversized payloads.
const maxBodyBytes = 1 * 1024 * 1024 // 1 MiB

const (
	replyUnknownSender = "Unrecognized phone number. Please contact an administrator to register your number."
	replyUnauthorized  = "You do not have permission to update resort data."
)

// Handler is the HTTP handler for POST /sms/webhook.
type Handler struct {
	registry *provider.Registry
	settings *settings.Settings
	users    *identity.Store
	dialogue *dialogue.Orchestrator
	audit    *audit.Log
	limiter  *rateLimiter

	// skipValidation disables webhook signature validation, for local
	// development behind tools that cannot produce vendor signatures.
	skipValidation bool
}

// Config holds options for creating a Handler.
type Config struct {
	// RateLimit is the maximum number of inbound messages allowed per
	// sender per minute. Defaults to DefaultRateLimit when zero or
	// negative.
	RateLimit int

	// SkipValidation disables signature validation. Never enable outside
	// local development.
	SkipValidation bool
}

// New creates a Handler.
func New(reg *provider.Registry, cfg *settings.Settings, users *identity.Store, d *dialogue.Orchestrator, aud *audit.Log, hc Config) *Handler {
	limit := hc.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &Handler{
		registry:       reg,
		settings:       cfg,
		users:          users,
		dialogue:       d,
		audit:          aud,
		limiter:        newRateLimiter(limit, time.Minute),
		skipValidation: hc.SkipValidation,
	}
}

// RouteRegistrar is satisfied by *http.ServeMux, allowing the handler to
// register its route without importing the app package directly.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the webhook handler on the given registrar.
func (h *Handler) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/sms/webhook", http.HandlerFunc(h.handleInbound))
}

// handleInbound is the HTTP handler for POST /sms/webhook.
func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := trace.WithTraceID(r.Context(), trace.GenerateID())

	p, err := h.activeProvider(ctx)
	if err != nil {
		slog.Error("webhook: no active provider", "err", err)
		http.Error(w, "no SMS provider configured", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("webhook: failed to read request body", "provider", p.Slug(), "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !h.skipValidation {
		if err := p.ValidateInbound(r, body); err != nil {
			slog.Info("webhook: validation failed", "provider", p.Slug(), "err", err)
			p.WriteAck(w, http.StatusForbidden, "invalid_signature")
			return
		}
	}

	in, err := p.ParseInbound(r, body)
	if err != nil || in.From == "" || in.Text == "" {
		slog.Info("webhook: unparseable inbound message", "provider", p.Slug(), "err", err)
		p.WriteAck(w, http.StatusBadRequest, "invalid_message")
		return
	}
	if in.MessageID == "" {
		in.MessageID = uuid.NewString()
	}

	sender := identity.NormalizePhone(in.From)
	log := observability.WithTrace(ctx).With(
		"provider", p.Slug(),
		"message_id", in.MessageID,
		"from", redact.Phone(in.From),
	)

	if !h.limiter.Allow(sender) {
		log.Info("webhook: rate limit exceeded")
		p.WriteAck(w, http.StatusOK, "rate_limited")
		return
	}

	user, err := h.users.LookupByPhone(ctx, in.From)
	switch {
	case err == identity.ErrUnknownSender:
		h.reply(ctx, p, in, 0, replyUnknownSender, log)
		p.WriteAck(w, http.StatusOK, "unknown_user")
		return
	case err != nil:
		log.Error("webhook: user lookup failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !user.CanEdit {
		h.reply(ctx, p, in, user.ID, replyUnauthorized, log)
		p.WriteAck(w, http.StatusOK, "unauthorized")
		return
	}

	replyText, err := h.dialogue.HandleMessage(ctx, sender, user, p.Slug(), in.Text)
	if err != nil {
		log.Error("webhook: dialogue failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.reply(ctx, p, in, user.ID, replyText, log)
	p.WriteAck(w, http.StatusOK, "success")
}

// reply sends the reply in a single attempt and records the exchange in the
// message log. Neither failure aborts the acknowledgement.
func (h *Handler) reply(ctx context.Context, p provider.Provider, in *provider.Inbound, userID int64, text string, log *slog.Logger) {
	if err := p.Send(ctx, in.From, text); err != nil {
		log.Error("webhook: send reply failed", "err", err)
	}

	err := h.audit.LogMessage(ctx, audit.Message{
		MessageID: in.MessageID,
		Sender:    identity.NormalizePhone(in.From),
		UserID:    userID,
		Provider:  p.Slug(),
		Text:      in.Text,
		Reply:     text,
	})
	if err != nil {
		log.Warn("webhook: message log write failed", "err", err)
	}

	log.Info("webhook: processed", "reply_len", len(text))
}

func (h *Handler) activeProvider(ctx context.Context) (provider.Provider, error) {
	slug, err := h.settings.ActiveProvider(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := h.registry.Get(slug)
	if !ok {
		return nil, &unknownProviderError{slug: slug}
	}
	return p, nil
}

type unknownProviderError struct{ slug string }

func (e *unknownProviderError) Error() string {
	return "webhook: no provider registered for slug " + e.slug
}
