package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Confirmation modes. In immediate_undo mode a command executes at once and
// the sender may reverse it within the undo window; in two_step mode nothing
// executes until the sender replies YES.
const (
	ModeImmediateUndo = "immediate_undo"
	ModeTwoStep       = "two_step"
)

// Configuration keys.
const (
	keyActiveProvider   = "provider.active"
	keyConfirmationMode = "confirmation.mode"
	keyUndoWindow       = "undo.window_seconds"

	// Per-provider configuration documents are stored as JSON under
	// "provider.config.<slug>".
	providerConfigPrefix = "provider.config."
)

// Defaults.
const (
	DefaultProvider   = "telnyx"
	DefaultMode       = ModeImmediateUndo
	DefaultUndoWindow = 120 * time.Second
)

// Undo window clamp bounds.
const (
	MinUndoWindow = 30 * time.Second
	MaxUndoWindow = 600 * time.Second
)

// Settings exposes typed accessors over the KV config store.
type Settings struct {
	kv KV
}

// New creates a Settings view over the given KV store.
func New(kv KV) *Settings {
	return &Settings{kv: kv}
}

// ActiveProvider returns the slug of the configured SMS provider
// (DefaultProvider when unset).
func (s *Settings) ActiveProvider(ctx context.Context) (string, error) {
	slug, err := s.kv.Get(ctx, keyActiveProvider)
	if errors.Is(err, ErrNotFound) {
		return DefaultProvider, nil
	}
	if err != nil {
		return "", err
	}
	return slug, nil
}

// SetActiveProvider stores the active provider slug.
func (s *Settings) SetActiveProvider(ctx context.Context, slug string) error {
	return s.kv.Set(ctx, keyActiveProvider, slug)
}

// ConfirmationMode returns the global confirmation-mode default
// (DefaultMode when unset or unrecognized).
func (s *Settings) ConfirmationMode(ctx context.Context) (string, error) {
	mode, err := s.kv.Get(ctx, keyConfirmationMode)
	if errors.Is(err, ErrNotFound) {
		return DefaultMode, nil
	}
	if err != nil {
		return "", err
	}
	if mode != ModeImmediateUndo && mode != ModeTwoStep {
		return DefaultMode, nil
	}
	return mode, nil
}

// SetConfirmationMode stores the global confirmation-mode default.
func (s *Settings) SetConfirmationMode(ctx context.Context, mode string) error {
	if mode != ModeImmediateUndo && mode != ModeTwoStep {
		return fmt.Errorf("settings: invalid confirmation mode %q", mode)
	}
	return s.kv.Set(ctx, keyConfirmationMode, mode)
}

// UndoWindow returns the configured undo window, clamped to
// [MinUndoWindow, MaxUndoWindow]. Unset or unparsable values yield
// DefaultUndoWindow.
func (s *Settings) UndoWindow(ctx context.Context) (time.Duration, error) {
	raw, err := s.kv.Get(ctx, keyUndoWindow)
	if errors.Is(err, ErrNotFound) {
		return DefaultUndoWindow, nil
	}
	if err != nil {
		return 0, err
	}

	var secs int
	if _, err := fmt.Sscanf(raw, "%d", &secs); err != nil {
		return DefaultUndoWindow, nil
	}
	return clampUndoWindow(time.Duration(secs) * time.Second), nil
}

// SetUndoWindow stores the undo window, clamped to the allowed range.
func (s *Settings) SetUndoWindow(ctx context.Context, d time.Duration) error {
	d = clampUndoWindow(d)
	return s.kv.Set(ctx, keyUndoWindow, fmt.Sprintf("%d", int(d.Seconds())))
}

func clampUndoWindow(d time.Duration) time.Duration {
	if d < MinUndoWindow {
		return MinUndoWindow
	}
	if d > MaxUndoWindow {
		return MaxUndoWindow
	}
	return d
}

// ProviderConfig returns the JSON configuration document for the given
// provider slug, or "{}" when none has been stored.
func (s *Settings) ProviderConfig(ctx context.Context, slug string) (string, error) {
	doc, err := s.kv.Get(ctx, providerConfigPrefix+slug)
	if errors.Is(err, ErrNotFound) {
		return "{}", nil
	}
	if err != nil {
		return "", err
	}
	return doc, nil
}

// SetProviderConfig stores the JSON configuration document for a provider.
// The document is validated against the provider's schema by the caller
// (provider.ValidateConfig) before it is accepted.
func (s *Settings) SetProviderConfig(ctx context.Context, slug, doc string) error {
	return s.kv.Set(ctx, providerConfigPrefix+slug, doc)
}
