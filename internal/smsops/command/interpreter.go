package command

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sierra-tahoe/smsops/internal/smsops/catalog"
)

// Keyword sets checked before the verb pattern, in recognition order.
// Note that "cancel" appears in both the undo set and the negative reply
// set; the undo set is checked first, so a standalone "cancel" always means
// undo.
var (
	statusKeywords  = []string{"status", "stat", "info"}
	helpKeywords    = []string{"help", "?", "commands"}
	undoKeywords    = []string{"undo", "cancel", "revert"}
	confirmKeywords = []string{"yes", "y", "confirm", "ok"}
	cancelKeywords  = []string{"no", "n"}
)

// verbPattern matches "<action> [type] <name>", e.g. "open lift grandview",
// "close broadway", "groom trail jackrabbit".
var verbPattern = regexp.MustCompile(`^(open|close|reopen|groom)\s+(?:(lift|trail|gate|park|feature)\s+)?(.+)$`)

// errInvalidFormat is the user-facing reply for unparseable messages.
const errInvalidFormat = `Invalid command format. Try "open lift name", "close trail name", "status", or "help".`

// errAmbiguous is the advisory attached to an ambiguous match; the dialogue
// layer presents the candidates as a numbered choice rather than showing
// this text alone.
const errAmbiguous = "Multiple matches found. Please be more specific."

// Resolution stage bounds.
const (
	substringLimit    = 10
	maxCandidates     = 3
	maxFuzzyDistance  = 5
	fuzzyLengthFactor = 0.3
)

// Finder is the minimal catalog interface the interpreter needs.
type Finder interface {
	FindExact(ctx context.Context, name string, types []catalog.Type) ([]catalog.Facility, error)
	FindSubstring(ctx context.Context, name string, types []catalog.Type, limit int) ([]catalog.Facility, error)
	All(ctx context.Context, types []catalog.Type) ([]catalog.Facility, error)
}

// Interpreter parses free-text SMS commands against a facility catalog.
type Interpreter struct {
	finder Finder
}

// NewInterpreter creates an Interpreter over the given catalog.
func NewInterpreter(finder Finder) *Interpreter {
	return &Interpreter{finder: finder}
}

// Interpret turns one inbound message into an Intent.
//
// Recognition order (first match wins): status keywords, help keywords,
// undo keywords, yes/no keywords, then the "<action> [type] <name>" verb
// pattern. Anything else is a parse error. Bare numeric replies are NOT
// interpreted here; they only mean something against an active
// disambiguation choice and are handled by the dialogue layer before it
// calls Interpret.
//
// A non-nil error indicates a catalog failure, not a user mistake; user
// mistakes come back as KindParseError intents.
func (i *Interpreter) Interpret(ctx context.Context, text string) (*Intent, error) {
	msg := strings.ToLower(strings.TrimSpace(text))

	switch {
	case contains(statusKeywords, msg):
		return &Intent{Kind: KindStatusQuery}, nil
	case contains(helpKeywords, msg):
		return &Intent{Kind: KindHelp}, nil
	case contains(undoKeywords, msg):
		return &Intent{Kind: KindUndo}, nil
	case contains(confirmKeywords, msg):
		return &Intent{Kind: KindConfirm}, nil
	case contains(cancelKeywords, msg):
		return &Intent{Kind: KindCancel}, nil
	}

	m := verbPattern.FindStringSubmatch(msg)
	if m == nil {
		return &Intent{Kind: KindParseError, ErrorText: errInvalidFormat}, nil
	}

	action := Action(m[1])
	hintToken := m[2]
	name := strings.TrimSpace(m[3])

	var searchTypes []catalog.Type
	var typeHint catalog.Type
	if hintToken != "" {
		t, ok := catalog.ParseTypeHint(hintToken)
		if !ok {
			// Unreachable given the pattern alternation, but fail safe.
			return &Intent{Kind: KindParseError, ErrorText: errInvalidFormat}, nil
		}
		typeHint = t
		searchTypes = []catalog.Type{t}
	} else {
		searchTypes = catalog.AllTypes
	}

	matches, err := i.resolve(ctx, name, searchTypes)
	if err != nil {
		return nil, fmt.Errorf("command: resolve %q: %w", name, err)
	}

	switch len(matches) {
	case 0:
		typeStr := ""
		if hintToken != "" {
			typeStr = " " + hintToken
		}
		return &Intent{
			Kind:      KindParseError,
			ErrorText: fmt.Sprintf("No%s found matching %q. Please check the name and try again.", typeStr, name),
		}, nil
	case 1:
		f := matches[0]
		return &Intent{Kind: KindChange, Action: action, TypeHint: typeHint, Facility: &f}, nil
	default:
		if len(matches) > maxCandidates {
			matches = matches[:maxCandidates]
		}
		return &Intent{
			Kind:       KindAmbiguous,
			Action:     action,
			TypeHint:   typeHint,
			Candidates: matches,
			ErrorText:  errAmbiguous,
		}, nil
	}
}

// resolve finds facilities matching the search term within the type set.
//
// Stage 1: exact case-insensitive title match.
// Stage 2: substring containment, capped to the first substringLimit results.
// Stage 3: fuzzy match over every facility in the type set by edit distance;
// a candidate is accepted only when distance <= maxFuzzyDistance AND
// distance <= ceil(fuzzyLengthFactor * len(title)). Fuzzy candidates are
// sorted ascending by distance and truncated to the best maxCandidates.
//
// Results keep their stage ordering; later stages run only when earlier ones
// found nothing.
func (i *Interpreter) resolve(ctx context.Context, term string, types []catalog.Type) ([]catalog.Facility, error) {
	term = strings.ToLower(term)

	exact, err := i.finder.FindExact(ctx, term, types)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}

	partial, err := i.finder.FindSubstring(ctx, term, types, substringLimit)
	if err != nil {
		return nil, err
	}
	if len(partial) > 0 {
		return partial, nil
	}

	all, err := i.finder.All(ctx, types)
	if err != nil {
		return nil, err
	}

	type scored struct {
		facility catalog.Facility
		distance int
	}
	var fuzzy []scored
	for _, f := range all {
		distance := levenshtein(strings.ToLower(f.Name), term)
		threshold := int(math.Ceil(float64(len(f.Name)) * fuzzyLengthFactor))
		if distance <= threshold && distance <= maxFuzzyDistance {
			fuzzy = append(fuzzy, scored{facility: f, distance: distance})
		}
	}

	sort.SliceStable(fuzzy, func(a, b int) bool {
		return fuzzy[a].distance < fuzzy[b].distance
	})
	if len(fuzzy) > maxCandidates {
		fuzzy = fuzzy[:maxCandidates]
	}

	out := make([]catalog.Facility, 0, len(fuzzy))
	for _, s := range fuzzy {
		out = append(out, s.facility)
	}
	return out, nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
