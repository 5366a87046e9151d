// Package command turns normalized SMS text into typed intents, including
// fuzzy entity resolution against the facility catalog.
package command

import (
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
)

// Kind identifies the variant of a parsed Intent.
type Kind string

const (
	// KindStatusQuery asks for the resort status summary.
	KindStatusQuery Kind = "status_query"
	// KindHelp asks for the command reference.
	KindHelp Kind = "help"
	// KindUndo asks to reverse the sender's last executed change.
	KindUndo Kind = "undo"
	// KindConfirm is a YES reply to a pending two-step confirmation.
	KindConfirm Kind = "confirm"
	// KindCancel is a NO reply discarding a pending confirmation.
	KindCancel Kind = "cancel"
	// KindChange is a fully resolved request to change one facility.
	KindChange Kind = "change"
	// KindAmbiguous is a change request that matched several facilities;
	// Candidates carries the ordered list (at most three).
	KindAmbiguous Kind = "ambiguous"
	// KindParseError means the message could not be interpreted; ErrorText
	// holds the user-facing explanation.
	KindParseError Kind = "parse_error"
)

// Action is the requested state change.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionReopen Action = "reopen"
	ActionGroom  Action = "groom"
)

// Label returns the capitalized verb ("Open", "Close", ...).
func (a Action) Label() string {
	switch a {
	case ActionOpen:
		return "Open"
	case ActionClose:
		return "Close"
	case ActionReopen:
		return "Reopen"
	case ActionGroom:
		return "Groom"
	}
	return string(a)
}

// PastLabel returns the verb form used in completion replies. Reopen reads
// as "opened" since both verbs set the same state.
func (a Action) PastLabel() string {
	switch a {
	case ActionClose:
		return "closed"
	case ActionGroom:
		return "groomed"
	default:
		return "opened"
	}
}

// Intent is the result of interpreting one inbound message. Kind selects the
// variant; the remaining fields are populated per variant as documented on
// the Kind constants. Intents are built fresh per message and never persisted
// except inside a session entry.
type Intent struct {
	Kind       Kind
	Action     Action
	TypeHint   catalog.Type // "" when the message did not name a type
	Facility   *catalog.Facility
	Candidates []catalog.Facility
	ErrorText  string
}

// FormatChange renders a resolved change request for confirmation prompts,
// e.g. "Open Lift: Grandview".
func FormatChange(action Action, f *catalog.Facility) string {
	return action.Label() + " " + f.Type.Label() + ": " + f.Name
}
