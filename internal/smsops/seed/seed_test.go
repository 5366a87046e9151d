package seed_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/identity"
	"github.com/sierra-tahoe/smsops/internal/smsops/seed"
	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

const validSeed = `
facilities:
  - type: lift
    name: Grandview
    status: open
  - type: trail
    name: Jackrabbit
    groomed: true
  - type: gate
    name: Gate 5
    published: false

users:
  - name: Dana
    phone: "+1 (530) 555-1234"
    can_edit: true
    confirmation_mode: two_step
  - name: Sam
    phone: "15305559999"
`

func TestParseValidFile(t *testing.T) {
	f, err := seed.Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Facilities) != 3 || len(f.Users) != 2 {
		t.Fatalf("Parse: got %d facilities, %d users", len(f.Facilities), len(f.Users))
	}
	if f.Facilities[0].Status != "open" || f.Facilities[1].Groomed != true {
		t.Errorf("facilities: got %+v", f.Facilities)
	}
	if f.Facilities[2].Published == nil || *f.Facilities[2].Published {
		t.Error("published: explicit false was not decoded")
	}
	if f.Users[0].ConfirmationMode != "two_step" || !f.Users[0].CanEdit {
		t.Errorf("users: got %+v", f.Users[0])
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			"unknown facility type",
			"facilities:\n  - type: gondola\n    name: Sky",
			"unknown facility type",
		},
		{
			"empty facility name",
			"facilities:\n  - type: lift\n    name: \" \"",
			"name must not be empty",
		},
		{
			"bad status",
			"facilities:\n  - type: lift\n    name: Grandview\n    status: broken",
			"status must be",
		},
		{
			"phone without digits",
			"users:\n  - name: Dana\n    phone: \"n/a\"",
			"phone must contain digits",
		},
		{
			"duplicate phone",
			"users:\n  - name: Dana\n    phone: \"+1 530 555 1234\"\n  - name: Sam\n    phone: \"15305551234\"",
			"duplicate phone",
		},
		{
			"bad confirmation mode",
			"users:\n  - name: Dana\n    phone: \"15305551234\"\n    confirmation_mode: maybe",
			"confirmation_mode must be",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("Parse: expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error: got %q, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestApply(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "smsops-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	cat := catalog.New(s)
	users := identity.New(s)

	doc, err := seed.Parse([]byte(validSeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := seed.Apply(ctx, doc, cat, users); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	lifts, err := cat.FindExact(ctx, "grandview", []catalog.Type{catalog.TypeLift})
	if err != nil || len(lifts) != 1 {
		t.Fatalf("FindExact lift: %v (%d results)", err, len(lifts))
	}
	if lifts[0].Status != catalog.StatusOpen {
		t.Errorf("lift status: got %q", lifts[0].Status)
	}

	// Gate 5 is unpublished and must not be visible to lookups.
	gates, err := cat.FindExact(ctx, "gate 5", []catalog.Type{catalog.TypeGate})
	if err != nil {
		t.Fatalf("FindExact gate: %v", err)
	}
	if len(gates) != 0 {
		t.Errorf("unpublished gate visible: %+v", gates)
	}

	u, err := users.LookupByPhone(ctx, "+1 (530) 555-1234")
	if err != nil {
		t.Fatalf("LookupByPhone: %v", err)
	}
	if !u.CanEdit || u.ConfirmationMode != "two_step" {
		t.Errorf("seeded user: got %+v", u)
	}

	// Re-applying with edits wins over existing rows.
	edited := strings.Replace(validSeed, "status: open", "status: closed", 1)
	doc, err = seed.Parse([]byte(edited))
	if err != nil {
		t.Fatalf("Parse edited: %v", err)
	}
	if err := seed.Apply(ctx, doc, cat, users); err != nil {
		t.Fatalf("Apply edited: %v", err)
	}
	lifts, _ = cat.FindExact(ctx, "grandview", []catalog.Type{catalog.TypeLift})
	if len(lifts) != 1 || lifts[0].Status != catalog.StatusClosed {
		t.Errorf("lift after re-apply: got %+v", lifts)
	}
}
