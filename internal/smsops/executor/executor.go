// Package executor applies resolved change requests to the facility catalog
// and produces reversible change records.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/audit"
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
	"github.com/sierra-tahoe/smsops/internal/smsops/session"
)

// Result is the outcome of applying one change. Undo is nil when there is
// nothing to reverse (validation failure, write failure, or the facility was
// already in the requested state).
type Result struct {
	Success bool
	Message string
	Undo    *session.UndoRecord
}

// Executor applies change requests against the facility catalog.
type Executor struct {
	catalog *catalog.Store
	audit   *audit.Log
}

// New creates an Executor over the given catalog and audit log.
func New(cat *catalog.Store, aud *audit.Log) *Executor {
	return &Executor{catalog: cat, audit: aud}
}

// targetField maps an action to the facility field it changes and the value
// it sets.
func targetField(action command.Action) (field, value string) {
	switch action {
	case command.ActionClose:
		return catalog.FieldStatus, catalog.StatusClosed
	case command.ActionGroom:
		return catalog.FieldGroomed, "true"
	default: // open and reopen both set open
		return catalog.FieldStatus, catalog.StatusOpen
	}
}

// Apply executes a resolved change request on behalf of userID and returns
// the outcome. source is the audit source tag (e.g. "sms:telnyx").
//
// Applying a change that matches the persisted state succeeds with an
// "already in that state" message and no undo payload.
func (e *Executor) Apply(ctx context.Context, action command.Action, f *catalog.Facility, userID int64, source string) *Result {
	if action == command.ActionGroom && f.Type != catalog.TypeTrail {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("Cannot groom %s %s: only trails can be groomed.", f.Type.Label(), f.Name),
		}
	}

	field, newValue := targetField(action)

	oldValue, err := e.catalog.GetField(ctx, f.ID, field)
	if err != nil {
		slog.Error("executor: read current value", "facility", f.ID, "field", field, "err", err)
		return &Result{Success: false, Message: "Failed to update status."}
	}

	if oldValue == newValue {
		return &Result{
			Success: true,
			Message: fmt.Sprintf("%s %s is already %s", f.Type.Label(), f.Name, action.PastLabel()),
		}
	}

	changed, err := e.catalog.SetField(ctx, f.ID, field, newValue)
	if err != nil || !changed {
		slog.Error("executor: write new value", "facility", f.ID, "field", field, "err", err)
		return &Result{Success: false, Message: "Failed to update status."}
	}

	// Fire-and-forget: an audit write failure must not abort the flow.
	if err := e.audit.Record(ctx, audit.Entry{
		FacilityID:   f.ID,
		FacilityType: f.Type,
		FieldChanged: field,
		OldValue:     oldValue,
		NewValue:     newValue,
		UserID:       userID,
		Source:       source,
	}); err != nil {
		slog.Warn("executor: audit write failed", "facility", f.ID, "err", err)
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("%s %s %s successfully", f.Type.Label(), f.Name, action.PastLabel()),
		Undo: &session.UndoRecord{
			FacilityID:   f.ID,
			FacilityType: f.Type,
			FacilityName: f.Name,
			FieldChanged: field,
			OldValue:     oldValue,
			NewValue:     newValue,
			UserID:       userID,
			CreatedAt:    time.Now(),
		},
	}
}

// Revert restores the value recorded in an undo record. The audit entry is
// tagged with the undo source so reversals are distinguishable from forward
// changes.
func (e *Executor) Revert(ctx context.Context, rec *session.UndoRecord, provider string) *Result {
	changed, err := e.catalog.SetField(ctx, rec.FacilityID, rec.FieldChanged, rec.OldValue)
	if err != nil {
		slog.Error("executor: revert", "facility", rec.FacilityID, "field", rec.FieldChanged, "err", err)
		return &Result{Success: false, Message: "Failed to undo command."}
	}

	if changed {
		if err := e.audit.Record(ctx, audit.Entry{
			FacilityID:   rec.FacilityID,
			FacilityType: rec.FacilityType,
			FieldChanged: rec.FieldChanged,
			OldValue:     rec.NewValue,
			NewValue:     rec.OldValue,
			UserID:       rec.UserID,
			Source:       audit.UndoSourceTag(provider),
		}); err != nil {
			slog.Warn("executor: audit write failed", "facility", rec.FacilityID, "err", err)
		}
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Undone: %s restored to %s", rec.FacilityName, valueLabel(rec.FieldChanged, rec.OldValue)),
	}
}

// valueLabel renders a field value for replies ("open", "closed",
// "groomed", "not groomed").
func valueLabel(field, value string) string {
	if field == catalog.FieldGroomed {
		if value == "true" {
			return "groomed"
		}
		return "not groomed"
	}
	return value
}

// StatusReport renders the resort status summary: per-type counts of open
// versus total published facilities.
func (e *Executor) StatusReport(ctx context.Context) (string, error) {
	counts, err := e.catalog.StatusCounts(ctx)
	if err != nil {
		return "", fmt.Errorf("executor: status report: %w", err)
	}

	lifts := counts[catalog.TypeLift]
	trails := counts[catalog.TypeTrail]
	gates := counts[catalog.TypeGate]

	return fmt.Sprintf("Resort Status:\nLifts: %d/%d open\nTrails: %d/%d open\nGates: %d/%d open",
		lifts.Open, lifts.Total, trails.Open, trails.Total, gates.Open, gates.Total), nil
}
