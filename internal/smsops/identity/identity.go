// Package identity resolves inbound sender phone numbers to known users and
// answers capability questions about them.
//
// Phone numbers are normalized to digits only before storage and lookup, so
// "+1 (530) 555-1234" and "15305551234" identify the same user.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

// ErrUnknownSender is returned when no user is registered for a phone number.
var ErrUnknownSender = errors.New("identity: unknown sender")

// User is a registered field-staff member allowed to text the service.
type User struct {
	ID    int64
	Name  string
	Phone string // digits only

	// CanEdit reports whether the user may change facility state.
	CanEdit bool

	// ConfirmationMode is the per-user confirmation policy override
	// ("immediate_undo" or "two_step"). Empty means use the global default.
	ConfirmationMode string
}

// Store provides user lookups over the application database.
type Store struct {
	db *store.Store
}

// New creates an identity Store backed by the given database.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

// NormalizePhone strips every non-digit rune from a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupByPhone finds the user registered for the given phone number.
// Returns ErrUnknownSender when the number is not registered.
func (s *Store) LookupByPhone(ctx context.Context, phone string) (*User, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrUnknownSender
	}

	u := &User{}
	var mode sql.NullString
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id, name, phone, can_edit, confirmation_mode
		FROM users
		WHERE phone = ?
	`, normalized).Scan(&u.ID, &u.Name, &u.Phone, &u.CanEdit, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownSender
	}
	if err != nil {
		return nil, fmt.Errorf("identity: lookup by phone: %w", err)
	}
	if mode.Valid {
		u.ConfirmationMode = mode.String
	}
	return u, nil
}

// Upsert creates or updates a user identified by their normalized phone
// number. Used by the seed loader.
func (s *Store) Upsert(ctx context.Context, u User) error {
	normalized := NormalizePhone(u.Phone)
	if normalized == "" {
		return fmt.Errorf("identity: upsert %q: phone has no digits", u.Name)
	}

	var mode sql.NullString
	if u.ConfirmationMode != "" {
		mode = sql.NullString{String: u.ConfirmationMode, Valid: true}
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO users (name, phone, can_edit, confirmation_mode)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			name              = excluded.name,
			can_edit          = excluded.can_edit,
			confirmation_mode = excluded.confirmation_mode
	`, u.Name, normalized, u.CanEdit, mode)
	if err != nil {
		return fmt.Errorf("identity: upsert %q: %w", u.Name, err)
	}
	return nil
}
