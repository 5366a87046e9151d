// Package app wires the SMS command service together: database, stores,
// dialogue pipeline, SMS providers, and the HTTP server.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sierra-tahoe/smsops/internal/smsops/audit"
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
	"github.com/sierra-tahoe/smsops/internal/smsops/dialogue"
	"github.com/sierra-tahoe/smsops/internal/smsops/executor"
	"github.com/sierra-tahoe/smsops/internal/smsops/identity"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider/telnyx"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider/textbelt"
	"github.com/sierra-tahoe/smsops/internal/smsops/provider/twilio"
	"github.com/sierra-tahoe/smsops/internal/smsops/seed"
	"github.com/sierra-tahoe/smsops/internal/smsops/session"
	"github.com/sierra-tahoe/smsops/internal/smsops/settings"
	"github.com/sierra-tahoe/smsops/internal/smsops/store"
	"github.com/sierra-tahoe/smsops/internal/smsops/webhook"
)

// Config holds application configuration.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string

	// HTTPAddr is the TCP address for the HTTP server (e.g. ":8080").
	HTTPAddr string

	// SeedPath is an optional YAML file of facilities and users applied at
	// startup. Empty disables seeding.
	SeedPath string

	// WebhookRateLimit is the maximum number of inbound messages accepted
	// per sender per minute. Defaults to webhook.DefaultRateLimit when
	// zero.
	WebhookRateLimit int

	// SkipWebhookValidation disables provider signature validation. For
	// local development only.
	SkipWebhookValidation bool
}

// App is the assembled service.
type App struct {
	config     *Config
	store      *store.Store
	settings   *settings.Settings
	facilities *catalog.Store
	users      *identity.Store
	httpServer *HTTPServer
}

// New creates the application: it opens the database, runs migrations,
// applies the seed file when configured, and wires the dialogue pipeline
// behind the webhook route.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	facilities := catalog.New(db)
	users := identity.New(db)
	auditLog := audit.New(db)
	cfg := settings.New(settings.NewKV(db))

	ctx := context.Background()

	if config.SeedPath != "" {
		f, err := seed.Load(config.SeedPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		if err := seed.Apply(ctx, f, facilities, users); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply seed file: %w", err)
		}
		slog.Info("seed applied", "facilities", len(f.Facilities), "users", len(f.Users))
	}

	registry, err := buildProviders(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("SMS providers ready", "slugs", registry.Slugs())

	interpreter := command.NewInterpreter(facilities)
	sessions := session.NewStore()
	exec := executor.New(facilities, auditLog)
	orchestrator := dialogue.New(interpreter, sessions, exec, cfg)

	handler := webhook.New(registry, cfg, users, orchestrator, auditLog, webhook.Config{
		RateLimit:      config.WebhookRateLimit,
		SkipValidation: config.SkipWebhookValidation,
	})

	httpServer := NewHTTPServer(config.HTTPAddr, facilities, auditLog)
	handler.RegisterRoutes(httpServer)
	httpServer.Handle("/providers", providerIndex(registry))
	slog.Info("webhook route registered", "addr", config.HTTPAddr)

	return &App{
		config:     config,
		store:      db,
		settings:   cfg,
		facilities: facilities,
		users:      users,
		httpServer: httpServer,
	}, nil
}

// buildProviders constructs every known provider from its stored
// non-secret config document plus environment secrets. Providers with no
// configuration still register; they fail with a clear error on first use.
func buildProviders(ctx context.Context, cfg *settings.Settings) (*provider.Registry, error) {
	var telnyxDoc struct {
		FromNumber string `json:"from_number"`
		PublicKey  string `json:"public_key"`
	}
	if err := loadProviderDoc(ctx, cfg, "telnyx", &telnyxDoc); err != nil {
		return nil, err
	}

	var twilioDoc struct {
		AccountSID string `json:"account_sid"`
		FromNumber string `json:"from_number"`
		WebhookURL string `json:"webhook_url"`
	}
	if err := loadProviderDoc(ctx, cfg, "twilio", &twilioDoc); err != nil {
		return nil, err
	}

	var textbeltDoc struct {
		ReplyWebhookURL string `json:"reply_webhook_url"`
	}
	if err := loadProviderDoc(ctx, cfg, "textbelt", &textbeltDoc); err != nil {
		return nil, err
	}

	registry := provider.NewRegistry(
		telnyx.New(telnyx.Config{
			APIKey:     os.Getenv("TELNYX_API_KEY"),
			FromNumber: telnyxDoc.FromNumber,
			PublicKey:  telnyxDoc.PublicKey,
		}),
		twilio.New(twilio.Config{
			AccountSID: twilioDoc.AccountSID,
			AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber: twilioDoc.FromNumber,
			WebhookURL: twilioDoc.WebhookURL,
		}),
		textbelt.New(textbelt.Config{
			APIKey:          os.Getenv("TEXTBELT_API_KEY"),
			ReplyWebhookURL: textbeltDoc.ReplyWebhookURL,
		}),
	)

	// Stored documents are validated against each provider's schema at
	// startup so a bad hand-edit shows up in the log, not on first send.
	for _, slug := range registry.Slugs() {
		p, _ := registry.Get(slug)
		doc, err := cfg.ProviderConfig(ctx, slug)
		if err != nil || doc == "{}" {
			continue
		}
		if err := provider.ValidateConfig(p, []byte(doc)); err != nil {
			slog.Warn("stored provider config fails its schema", "provider", slug, "err", err)
		}
	}

	return registry, nil
}

// providerIndex lists each registered provider and its settings fields for
// administrative tooling. Secret fields are marked readonly and carry no
// value.
func providerIndex(reg *provider.Registry) http.Handler {
	type entry struct {
		Name   string                 `json:"name"`
		Slug   string                 `json:"slug"`
		Fields []provider.ConfigField `json:"fields"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := make([]entry, 0, len(reg.Slugs()))
		for _, slug := range reg.Slugs() {
			p, _ := reg.Get(slug)
			out = append(out, entry{Name: p.Name(), Slug: p.Slug(), Fields: p.ConfigFields()})
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func loadProviderDoc(ctx context.Context, cfg *settings.Settings, slug string, out any) error {
	doc, err := cfg.ProviderConfig(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to load %s config: %w", slug, err)
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("stored %s config is not valid JSON: %w", slug, err)
	}
	return nil
}

// Run starts the HTTP server and blocks until an interrupt signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.httpServer.Start(ctx); err != nil {
		return err
	}

	slog.Info("smsops is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application.
func (a *App) Stop() {
	slog.Info("stopping http server")
	a.httpServer.Stop()

	slog.Info("closing database")
	a.store.Close()
}
