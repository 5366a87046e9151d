// Package dialogue implements the per-sender conversational state machine.
//
// Given a normalized inbound message and the sender's session state, the
// orchestrator decides what to execute, what to store, and what reply to
// send. Every inbound message produces exactly one reply; send failures are
// reported to the caller, never retried here.
package dialogue

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sierra-tahoe/smsops/internal/smsops/audit"
	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
	"github.com/sierra-tahoe/smsops/internal/smsops/command"
	"github.com/sierra-tahoe/smsops/internal/smsops/executor"
	"github.com/sierra-tahoe/smsops/internal/smsops/identity"
	"github.com/sierra-tahoe/smsops/internal/smsops/session"
	"github.com/sierra-tahoe/smsops/internal/smsops/settings"
)

// numericReply matches a bare positive integer, the continuation of an
// active disambiguation choice.
var numericReply = regexp.MustCompile(`^\s*(\d+)\s*$`)

// Orchestrator is the dialogue state machine. It is safe for concurrent use;
// per-sender state transitions are best-effort, not linearizable (see the
// session package).
type Orchestrator struct {
	interpreter *command.Interpreter
	sessions    *session.Store
	exec        *executor.Executor
	settings    *settings.Settings
}

// New creates an Orchestrator.
func New(interp *command.Interpreter, sessions *session.Store, exec *executor.Executor, cfg *settings.Settings) *Orchestrator {
	return &Orchestrator{
		interpreter: interp,
		sessions:    sessions,
		exec:        exec,
		settings:    cfg,
	}
}

// HandleMessage processes one inbound message from an authorized user and
// returns the reply text. A non-nil error indicates an integration failure
// (catalog or configuration unavailable), not a user mistake; user mistakes
// always come back as reply text.
func (o *Orchestrator) HandleMessage(ctx context.Context, sender string, user *identity.User, provider, text string) (string, error) {
	// A bare number is only meaningful against an active disambiguation
	// choice and never reaches the interpreter.
	if m := numericReply.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return o.handleSelection(ctx, sender, user, provider, n)
		}
	}

	intent, err := o.interpreter.Interpret(ctx, text)
	if err != nil {
		return "", err
	}

	switch intent.Kind {
	case command.KindHelp:
		return command.HelpMessage, nil

	case command.KindStatusQuery:
		return o.exec.StatusReport(ctx)

	case command.KindUndo:
		return o.handleUndo(ctx, sender, provider), nil

	case command.KindConfirm:
		return o.handleConfirm(ctx, sender, user, provider)

	case command.KindCancel:
		// Idempotent: replying "cancelled" even when nothing was pending.
		o.sessions.ClearPending(sender)
		return "Command cancelled.", nil

	case command.KindAmbiguous:
		return o.handleAmbiguous(sender, user, intent), nil

	case command.KindParseError:
		return intent.ErrorText, nil

	case command.KindChange:
		return o.execute(ctx, sender, user, provider, intent.Action, intent.Facility, user.ID, false)
	}

	return "", fmt.Errorf("dialogue: unhandled intent kind %q", intent.Kind)
}

// execute runs the Execute state. When confirmed is false and the sender's
// confirmation mode is two-step, the change is stored as a pending
// confirmation instead of being applied; confirmed is true when the change
// has already passed a confirmation round (YES reply).
func (o *Orchestrator) execute(ctx context.Context, sender string, user *identity.User, provider string, action command.Action, f *catalog.Facility, actorID int64, confirmed bool) (string, error) {
	if !confirmed {
		mode, err := o.confirmationMode(ctx, user)
		if err != nil {
			return "", err
		}
		if mode == settings.ModeTwoStep {
			o.sessions.SetPending(sender, session.PendingConfirmation{
				Intent: command.Intent{Kind: command.KindChange, Action: action, Facility: f},
				UserID: actorID,
			})
			return fmt.Sprintf("%s? Reply YES to confirm or NO to cancel.", command.FormatChange(action, f)), nil
		}
	}

	res := o.exec.Apply(ctx, action, f, actorID, audit.SourceTag(provider))
	if !res.Success || res.Undo == nil {
		// Failures and no-op "already in that state" results carry no undo.
		return res.Message, nil
	}

	window, err := o.settings.UndoWindow(ctx)
	if err != nil {
		return "", err
	}
	o.sessions.SetUndo(sender, *res.Undo, window)

	minutes := int(math.Ceil(window.Minutes()))
	return fmt.Sprintf("%s. Reply UNDO within %d min to reverse.", res.Message, minutes), nil
}

// confirmationMode resolves the user's preference first, then the global
// default.
func (o *Orchestrator) confirmationMode(ctx context.Context, user *identity.User) (string, error) {
	if user.ConfirmationMode == settings.ModeImmediateUndo || user.ConfirmationMode == settings.ModeTwoStep {
		return user.ConfirmationMode, nil
	}
	return o.settings.ConfirmationMode(ctx)
}

// handleUndo restores the sender's last change if the undo window is still
// open.
func (o *Orchestrator) handleUndo(ctx context.Context, sender, provider string) string {
	rec, ok := o.sessions.Undo(sender)
	if !ok {
		return "Nothing to undo. Undo window expired or no recent command."
	}

	res := o.exec.Revert(ctx, rec, provider)
	if res.Success {
		o.sessions.ClearUndo(sender)
	}
	return res.Message
}

// handleConfirm executes the sender's pending two-step command.
func (o *Orchestrator) handleConfirm(ctx context.Context, sender string, user *identity.User, provider string) (string, error) {
	pending, ok := o.sessions.Pending(sender)
	if !ok {
		return "No pending command to confirm.", nil
	}

	o.sessions.ClearPending(sender)
	return o.execute(ctx, sender, user, provider, pending.Intent.Action, pending.Intent.Facility, pending.UserID, true)
}

// handleAmbiguous stores the candidate list and asks the sender to pick by
// number.
func (o *Orchestrator) handleAmbiguous(sender string, user *identity.User, intent *command.Intent) string {
	o.sessions.SetChoice(sender, session.DisambiguationChoice{
		Action:     intent.Action,
		Candidates: intent.Candidates,
		UserID:     user.ID,
	})

	lines := make([]string, len(intent.Candidates))
	for i, f := range intent.Candidates {
		lines[i] = fmt.Sprintf("Press %d to %s %s %s", i+1, string(intent.Action), f.Type.Label(), f.Name)
	}
	return strings.Join(lines, "\n")
}

// handleSelection resolves a numeric reply against the sender's active
// disambiguation choice. An out-of-range number leaves the choice in place.
func (o *Orchestrator) handleSelection(ctx context.Context, sender string, user *identity.User, provider string, n int) (string, error) {
	choice, ok := o.sessions.Choice(sender)
	if !ok {
		return "No pending selection. Please send a new command.", nil
	}

	idx := n - 1
	if idx < 0 || idx >= len(choice.Candidates) {
		return fmt.Sprintf("Invalid selection. Please choose 1-%d.", len(choice.Candidates)), nil
	}

	selected := choice.Candidates[idx]
	o.sessions.ClearChoice(sender)
	return o.execute(ctx, sender, user, provider, choice.Action, &selected, choice.UserID, false)
}
