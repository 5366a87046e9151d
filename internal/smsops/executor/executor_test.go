package executor_test

import (
	"context"
	"os"
	"testing"

	"github.com/sierra-tahoe/smsops/internal/smsops/audit"
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
	"github.com/sierra-tahoe/smsops/internal/smsops/executor"
	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

type testEnv struct {
	exec    *executor.Executor
	catalog *catalog.Store
	audit   *audit.Log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
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

	cat := catalog.New(s)
	aud := audit.New(s)
	return &testEnv{
		exec:    executor.New(cat, aud),
		catalog: cat,
		audit:   aud,
	}
}

func (e *testEnv) seed(t *testing.T, f catalog.Facility) *catalog.Facility {
	t.Helper()
	ctx := context.Background()
	if f.Status == "" {
		f.Status = catalog.StatusClosed
	}
	f.Published = true
	if err := e.catalog.Upsert(ctx, f); err != nil {
		t.Fatalf("Upsert %q: %v", f.Name, err)
	}
	all, err := e.catalog.FindExact(ctx, f.Name, []catalog.Type{f.Type})
	if err != nil || len(all) != 1 {
		t.Fatalf("FindExact %q: %v (%d results)", f.Name, err, len(all))
	}
	return &all[0]
}

func TestApplyOpensClosedLift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Grandview"})

	res := env.exec.Apply(ctx, command.ActionOpen, f, 7, "sms:telnyx")
	if !res.Success {
		t.Fatalf("Apply failed: %s", res.Message)
	}
	if res.Message != "Lift Grandview opened successfully" {
		t.Errorf("Message: got %q", res.Message)
	}
	if res.Undo == nil {
		t.Fatal("Undo: got nil, want record")
	}
	if res.Undo.OldValue != catalog.StatusClosed || res.Undo.NewValue != catalog.StatusOpen {
		t.Errorf("Undo values: got old=%q new=%q", res.Undo.OldValue, res.Undo.NewValue)
	}

	got, _ := env.catalog.GetField(ctx, f.ID, catalog.FieldStatus)
	if got != catalog.StatusOpen {
		t.Errorf("status after apply: got %q", got)
	}

	entries, err := env.audit.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries: got %d, want 1", len(entries))
	}
	if entries[0].Source != "sms:telnyx" || entries[0].UserID != 7 {
		t.Errorf("audit entry: got %+v", entries[0])
	}
}

// Applying a change that matches the persisted state succeeds without
// writing or producing an undo record.
func TestApplyIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Grandview", Status: catalog.StatusOpen})

	res := env.exec.Apply(ctx, command.ActionOpen, f, 7, "sms:telnyx")
	if !res.Success {
		t.Fatalf("Apply failed: %s", res.Message)
	}
	if res.Message != "Lift Grandview is already opened" {
		t.Errorf("Message: got %q", res.Message)
	}
	if res.Undo != nil {
		t.Error("Undo: got record, want nil for no-op")
	}

	entries, _ := env.audit.Recent(ctx, 10)
	if len(entries) != 0 {
		t.Errorf("audit entries: got %d, want 0 for no-op", len(entries))
	}
}

func TestApplyGroomRequiresTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Grandview"})

	res := env.exec.Apply(ctx, command.ActionGroom, f, 7, "sms:telnyx")
	if res.Success {
		t.Fatal("Apply: grooming a lift succeeded")
	}
	if res.Message != "Cannot groom Lift Grandview: only trails can be groomed." {
		t.Errorf("Message: got %q", res.Message)
	}
}

func TestApplyGroomTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.seed(t, catalog.Facility{Type: catalog.TypeTrail, Name: "Jackrabbit"})

	res := env.exec.Apply(ctx, command.ActionGroom, f, 7, "sms:telnyx")
	if !res.Success {
		t.Fatalf("Apply failed: %s", res.Message)
	}
	if res.Message != "Trail Jackrabbit groomed successfully" {
		t.Errorf("Message: got %q", res.Message)
	}

	got, _ := env.catalog.GetField(ctx, f.ID, catalog.FieldGroomed)
	if got != "true" {
		t.Errorf("groomed after apply: got %q", got)
	}
}

func TestRevertRestoresOldValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Grandview"})

	applied := env.exec.Apply(ctx, command.ActionOpen, f, 7, "sms:telnyx")
	if applied.Undo == nil {
		t.Fatal("Apply: no undo record")
	}

	res := env.exec.Revert(ctx, applied.Undo, "telnyx")
	if !res.Success {
		t.Fatalf("Revert failed: %s", res.Message)
	}
	if res.Message != "Undone: Grandview restored to closed" {
		t.Errorf("Message: got %q", res.Message)
	}

	got, _ := env.catalog.GetField(ctx, f.ID, catalog.FieldStatus)
	if got != catalog.StatusClosed {
		t.Errorf("status after revert: got %q", got)
	}

	entries, _ := env.audit.Recent(ctx, 10)
	if len(entries) != 2 {
		t.Fatalf("audit entries: got %d, want 2", len(entries))
	}
	// Recent returns newest first.
	if entries[0].Source != "sms:telnyx:undo" {
		t.Errorf("undo audit source: got %q", entries[0].Source)
	}
}

func TestStatusReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Grandview", Status: catalog.StatusOpen})
	env.seed(t, catalog.Facility{Type: catalog.TypeLift, Name: "Summit"})
	env.seed(t, catalog.Facility{Type: catalog.TypeTrail, Name: "Broadway", Status: catalog.StatusOpen})
	env.seed(t, catalog.Facility{Type: catalog.TypeGate, Name: "Gate 5"})

	got, err := env.exec.StatusReport(ctx)
	if err != nil {
		t.Fatalf("StatusReport: %v", err)
	}
	want := "Resort Status:\nLifts: 1/2 open\nTrails: 1/1 open\nGates: 0/1 open"
	if got != want {
		t.Errorf("StatusReport:\ngot  %q\nwant %q", got, want)
	}
}
