// Package seed loads the facility and user inventory from a YAML file and
// applies it to the database. Seeding is an upsert: running it again with
// the same file is a no-op, and edits to the file win over existing rows.
package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/identity"
)

// File is the root type of a seed document.
type File struct {
	// Facilities is the resort inventory.
	Facilities []Facility `yaml:"facilities"`

	// Users lists the phone numbers allowed to send commands.
	Users []User `yaml:"users"`
}

// Facility is one seeded facility.
type Facility struct {
	// Type is one of lift, trail, gate, park_feature.
	Type string `yaml:"type"`

	// Name is the display name, unique per type (case-insensitive).
	Name string `yaml:"name"`

	// Status is "open" or "closed". Defaults to closed.
	Status string `yaml:"status,omitempty"`

	// Groomed marks a trail as groomed.
	Groomed bool `yaml:"groomed,omitempty"`

	// Published controls whether the facility counts toward the status
	// report. Defaults to true.
	Published *bool `yaml:"published,omitempty"`
}

// User is one seeded user.
type User struct {
	Name string `yaml:"name"`

	// Phone is the user's number; any formatting is accepted and
	// normalized to digits.
	Phone string `yaml:"phone"`

	// CanEdit grants permission to change facility state.
	CanEdit bool `yaml:"can_edit"`

	// ConfirmationMode overrides the global default for this user.
	// One of immediate_undo, two_step, or empty for no override.
	ConfirmationMode string `yaml:"confirmation_mode,omitempty"`
}

// Parse decodes a seed YAML document and validates it. It is the canonical
// entry point for loading seed files.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed parse: %w", err)
	}
	if err := Validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed load: %w", err)
	}
	return Parse(data)
}

// Validate checks a seed File for structural correctness. It returns the
// first validation error encountered, or nil if the file is valid.
func Validate(f *File) error {
	if f == nil {
		return fmt.Errorf("seed file must not be nil")
	}

	for i, fac := range f.Facilities {
		if _, ok := catalog.ParseTypeHint(fac.Type); !ok {
			return fmt.Errorf("facilities[%d]: unknown facility type %q", i, fac.Type)
		}
		if strings.TrimSpace(fac.Name) == "" {
			return fmt.Errorf("facilities[%d]: name must not be empty", i)
		}
		if fac.Status != "" && fac.Status != catalog.StatusOpen && fac.Status != catalog.StatusClosed {
			return fmt.Errorf("facilities[%d] (%q): status must be %q or %q, got %q",
				i, fac.Name, catalog.StatusOpen, catalog.StatusClosed, fac.Status)
		}
	}

	seen := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("users[%d]: name must not be empty", i)
		}
		phone := identity.NormalizePhone(u.Phone)
		if phone == "" {
			return fmt.Errorf("users[%d] (%q): phone must contain digits", i, u.Name)
		}
		if _, dup := seen[phone]; dup {
			return fmt.Errorf("users[%d] (%q): duplicate phone %q", i, u.Name, u.Phone)
		}
		seen[phone] = struct{}{}

		if u.ConfirmationMode != "" {
			if u.ConfirmationMode != "immediate_undo" && u.ConfirmationMode != "two_step" {
				return fmt.Errorf("users[%d] (%q): confirmation_mode must be immediate_undo or two_step, got %q",
					i, u.Name, u.ConfirmationMode)
			}
		}
	}
	return nil
}

// Apply upserts the seed file's facilities and users.
func Apply(ctx context.Context, f *File, facilities *catalog.Store, users *identity.Store) error {
	for _, fac := range f.Facilities {
		typ, ok := catalog.ParseTypeHint(fac.Type)
		if !ok {
			return fmt.Errorf("seed: unknown facility type %q", fac.Type)
		}
		status := fac.Status
		if status == "" {
			status = catalog.StatusClosed
		}
		published := true
		if fac.Published != nil {
			published = *fac.Published
		}
		err := facilities.Upsert(ctx, catalog.Facility{
			Type:      typ,
			Name:      fac.Name,
			Status:    status,
			Groomed:   fac.Groomed,
			Published: published,
		})
		if err != nil {
			return fmt.Errorf("seed facility %q: %w", fac.Name, err)
		}
	}

	for _, u := range f.Users {
		err := users.Upsert(ctx, identity.User{
			Name:             u.Name,
			Phone:            identity.NormalizePhone(u.Phone),
			CanEdit:          u.CanEdit,
			ConfirmationMode: u.ConfirmationMode,
		})
		if err != nil {
			return fmt.Errorf("seed user %q: %w", u.Name, err)
		}
	}
	return nil
}
