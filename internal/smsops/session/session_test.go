package session

import (
	"testing"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
)

// newClockedStore returns a Store whose clock is controlled by the returned
// advance function.
func newClockedStore() (*Store, func(d time.Duration)) {
	now := time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC)
	s := NewStore()
	s.now = func() time.Time { return now }
	return s, func(d time.Duration) { now = now.Add(d) }
}

func TestPendingRoundTrip(t *testing.T) {
	s, _ := newClockedStore()

	s.SetPending("+1 (530) 555-0101", PendingConfirmation{
		Intent: command.Intent{Kind: command.KindChange, Action: command.ActionOpen},
		UserID: 42,
	})

	// Lookup under a different formatting of the same number.
	p, ok := s.Pending("15305550101")
	if !ok {
		t.Fatal("Pending: not found")
	}
	if p.UserID != 42 {
		t.Errorf("UserID: got %d, want 42", p.UserID)
	}
	if p.Intent.Action != command.ActionOpen {
		t.Errorf("Action: got %q, want open", p.Intent.Action)
	}
}

func TestPendingExpires(t *testing.T) {
	s, advance := newClockedStore()

	s.SetPending("15305550101", PendingConfirmation{UserID: 1})

	advance(PendingTTL - time.Second)
	if _, ok := s.Pending("15305550101"); !ok {
		t.Fatal("Pending: expired before TTL")
	}

	advance(2 * time.Second)
	if _, ok := s.Pending("15305550101"); ok {
		t.Fatal("Pending: still present after TTL")
	}
}

func TestChoiceExpires(t *testing.T) {
	s, advance := newClockedStore()

	s.SetChoice("15305550101", DisambiguationChoice{
		Action: command.ActionClose,
		Candidates: []catalog.Facility{
			{ID: 1, Type: catalog.TypeTrail, Name: "Ridge Run"},
		},
		UserID: 1,
	})

	if _, ok := s.Choice("15305550101"); !ok {
		t.Fatal("Choice: not found")
	}

	advance(DisambiguationTTL + time.Second)
	if _, ok := s.Choice("15305550101"); ok {
		t.Fatal("Choice: still present after TTL")
	}
}

func TestUndoUsesCallerTTL(t *testing.T) {
	s, advance := newClockedStore()

	s.SetUndo("15305550101", UndoRecord{FacilityID: 3}, 2*time.Minute)

	advance(time.Minute)
	if _, ok := s.Undo("15305550101"); !ok {
		t.Fatal("Undo: expired before window")
	}

	advance(90 * time.Second)
	if _, ok := s.Undo("15305550101"); ok {
		t.Fatal("Undo: still present after window")
	}
}

// The three sub-states expire independently; clearing or expiring one must
// not disturb the others.
func TestSubStatesIndependent(t *testing.T) {
	s, advance := newClockedStore()

	s.SetPending("15305550101", PendingConfirmation{UserID: 1})
	s.SetUndo("15305550101", UndoRecord{FacilityID: 3}, 30*time.Second)

	advance(time.Minute)

	if _, ok := s.Undo("15305550101"); ok {
		t.Fatal("Undo: should have expired")
	}
	if _, ok := s.Pending("15305550101"); !ok {
		t.Fatal("Pending: should still be present")
	}

	s.ClearPending("15305550101")
	if _, ok := s.Pending("15305550101"); ok {
		t.Fatal("Pending: still present after clear")
	}
}

func TestClearOnMissingSenderIsNoop(t *testing.T) {
	s, _ := newClockedStore()

	s.ClearPending("19995550000")
	s.ClearChoice("19995550000")
	s.ClearUndo("19995550000")

	if len(s.entries) != 0 {
		t.Errorf("entries: got %d, want 0", len(s.entries))
	}
}

// Expired entries are pruned from the map on read, so idle senders do not
// accumulate.
func TestPruneOnRead(t *testing.T) {
	s, advance := newClockedStore()

	s.SetChoice("15305550101", DisambiguationChoice{UserID: 1})
	advance(DisambiguationTTL + time.Second)

	s.Choice("15305550101")
	if len(s.entries) != 0 {
		t.Errorf("entries: got %d, want 0 after prune", len(s.entries))
	}
}
