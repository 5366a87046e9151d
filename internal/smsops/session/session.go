// Package session holds short-lived per-sender conversational state: a
// pending two-step confirmation, a disambiguation choice list, or an undo
// record for the sender's last change.
//
// Each sub-state carries its own expiry and the three expire independently;
// establishing one does not clear the others. Expiry is evaluated lazily at
// read time: an expired entry simply behaves as absent, no sweeper runs.
//
// Entries are kept in a mutex-guarded in-memory map keyed by the sender's
// digits-only phone number. Read-modify-write across a load and a later
// clear is not atomic: two concurrent deliveries from the same sender can
// race (e.g. a double-confirm executing twice). That is an accepted property
// of the at-least-once SMS channel, not something this store defends against.
package session

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
)

// TTLs for the confirmation and disambiguation sub-states. The undo TTL is
// the configured undo window and is passed per call.
const (
	PendingTTL        = 5 * time.Minute
	DisambiguationTTL = 5 * time.Minute
)

// PendingConfirmation is a change request held until the sender replies
// YES or NO (two-step mode).
type PendingConfirmation struct {
	Intent    command.Intent
	UserID    int64
	CreatedAt time.Time
}

// DisambiguationChoice is a numbered candidate list awaiting the sender's
// selection.
type DisambiguationChoice struct {
	Action     command.Action
	Candidates []catalog.Facility
	UserID     int64
	CreatedAt  time.Time
}

// UndoRecord captures everything needed to reverse one executed change.
type UndoRecord struct {
	FacilityID   int64
	FacilityType catalog.Type
	FacilityName string
	FieldChanged string
	OldValue     string
	NewValue     string
	UserID       int64
	CreatedAt    time.Time
}

// entry is the per-sender slot holding the three optional sub-states.
type entry struct {
	pending        *PendingConfirmation
	pendingExpires time.Time

	choice        *DisambiguationChoice
	choiceExpires time.Time

	undo        *UndoRecord
	undoExpires time.Time
}

func (e *entry) empty() bool {
	return e.pending == nil && e.choice == nil && e.undo == nil
}

// Store manages per-sender session entries. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewStore creates an empty session Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// senderKey normalizes a phone number to digits only, so all vendor
// formattings of the same number share one session.
func senderKey(sender string) string {
	var b strings.Builder
	for _, r := range sender {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// slot returns the entry for sender, creating it when create is true.
// Callers must hold s.mu.
func (s *Store) slot(key string, create bool) *entry {
	e, ok := s.entries[key]
	if !ok && create {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// prune drops the entry when every sub-state is gone. Callers must hold s.mu.
func (s *Store) prune(key string, e *entry) {
	if e != nil && e.empty() {
		delete(s.entries, key)
	}
}

// SetPending stores a pending confirmation for sender with PendingTTL.
func (s *Store) SetPending(sender string, p PendingConfirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.slot(senderKey(sender), true)
	e.pending = &p
	e.pendingExpires = s.now().Add(PendingTTL)
}

// Pending returns the sender's pending confirmation, or false when absent
// or expired.
func (s *Store) Pending(sender string) (*PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	e := s.slot(key, false)
	if e == nil || e.pending == nil {
		return nil, false
	}
	if s.now().After(e.pendingExpires) {
		e.pending = nil
		s.prune(key, e)
		return nil, false
	}
	return e.pending, true
}

// ClearPending removes the sender's pending confirmation if present.
func (s *Store) ClearPending(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	if e := s.slot(key, false); e != nil {
		e.pending = nil
		s.prune(key, e)
	}
}

// SetChoice stores a disambiguation choice list for sender with
// DisambiguationTTL.
func (s *Store) SetChoice(sender string, c DisambiguationChoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.slot(senderKey(sender), true)
	e.choice = &c
	e.choiceExpires = s.now().Add(DisambiguationTTL)
}

// Choice returns the sender's disambiguation choice list, or false when
// absent or expired.
func (s *Store) Choice(sender string) (*DisambiguationChoice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	e := s.slot(key, false)
	if e == nil || e.choice == nil {
		return nil, false
	}
	if s.now().After(e.choiceExpires) {
		e.choice = nil
		s.prune(key, e)
		return nil, false
	}
	return e.choice, true
}

// ClearChoice removes the sender's disambiguation choice list if present.
func (s *Store) ClearChoice(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	if e := s.slot(key, false); e != nil {
		e.choice = nil
		s.prune(key, e)
	}
}

// SetUndo stores an undo record for sender, expiring after ttl (the
// configured undo window).
func (s *Store) SetUndo(sender string, rec UndoRecord, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.slot(senderKey(sender), true)
	e.undo = &rec
	e.undoExpires = s.now().Add(ttl)
}

// Undo returns the sender's undo record, or false when absent or expired.
func (s *Store) Undo(sender string) (*UndoRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	e := s.slot(key, false)
	if e == nil || e.undo == nil {
		return nil, false
	}
	if s.now().After(e.undoExpires) {
		e.undo = nil
		s.prune(key, e)
		return nil, false
	}
	return e.undo, true
}

// ClearUndo removes the sender's undo record if present.
func (s *Store) ClearUndo(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := senderKey(sender)
	if e := s.slot(key, false); e != nil {
		e.undo = nil
		s.prune(key, e)
	}
}
