// Package catalog provides read/write access to the facility catalog: the
// named resort assets (lifts, trails, gates, park features) whose operating
// state is changed over SMS.
//
// Identity (type + name) is immutable once seeded; only the status fields
// (`status`, and `groomed` for trails) are mutated at runtime. All lookup
// paths consider published facilities only.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sierra-tahoe/smsops/internal/smsops/store"
)

// Type identifies the kind of facility.
type Type string

const (
	TypeLift        Type = "lift"
	TypeTrail       Type = "trail"
	TypeGate        Type = "gate"
	TypeParkFeature Type = "park_feature"
)

// AllTypes lists every facility type, in the order used for unhinted lookups
// and the status report.
var AllTypes = []Type{TypeLift, TypeTrail, TypeGate, TypeParkFeature}

// Label returns the human-readable label for the type (e.g. "Park Feature").
func (t Type) Label() string {
	switch t {
	case TypeLift:
		return "Lift"
	case TypeTrail:
		return "Trail"
	case TypeGate:
		return "Gate"
	case TypeParkFeature:
		return "Park Feature"
	}
	return string(t)
}

// ParseTypeHint maps a message type hint token or canonical type name to a
// facility type. "park" and "feature" both map to TypeParkFeature.
func ParseTypeHint(hint string) (Type, bool) {
	switch strings.ToLower(hint) {
	case "lift":
		return TypeLift, true
	case "trail":
		return TypeTrail, true
	case "gate":
		return TypeGate, true
	case "park", "feature", "park_feature":
		return TypeParkFeature, true
	}
	return "", false
}

// Status values for the facilities.status column.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Mutable facility fields addressable by SetField / undo records.
const (
	FieldStatus  = "status"
	FieldGroomed = "groomed"
)

// Facility is one named resort asset.
type Facility struct {
	ID        int64
	Type      Type
	Name      string
	Status    string
	Groomed   bool
	Published bool
}

// ErrNotFound is returned when a facility does not exist.
var ErrNotFound = errors.New("catalog: facility not found")

// Store provides catalog queries over the application database.
type Store struct {
	db *store.Store
}

// New creates a catalog Store backed by the given database.
func New(db *store.Store) *Store {
	return &Store{db: db}
}

const facilityColumns = "id, type, name, status, groomed, published"

func scanFacility(row interface{ Scan(...any) error }) (*Facility, error) {
	f := &Facility{}
	var groomed, published int
	if err := row.Scan(&f.ID, &f.Type, &f.Name, &f.Status, &groomed, &published); err != nil {
		return nil, err
	}
	f.Groomed = groomed != 0
	f.Published = published != 0
	return f, nil
}

// Get retrieves a facility by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Facility, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id)
	f, err := scanFacility(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %d: %w", id, err)
	}
	return f, nil
}

// typePlaceholders builds the SQL IN clause fragment and arguments for a
// type set. An empty set means all types.
func typePlaceholders(types []Type) (string, []any) {
	if len(types) == 0 {
		types = AllTypes
	}
	marks := make([]string, len(types))
	args := make([]any, len(types))
	for i, t := range types {
		marks[i] = "?"
		args[i] = string(t)
	}
	return strings.Join(marks, ", "), args
}

// FindExact returns published facilities whose name matches exactly
// (case-insensitive) within the given type set.
func (s *Store) FindExact(ctx context.Context, name string, types []Type) ([]Facility, error) {
	in, args := typePlaceholders(types)
	args = append(args, strings.ToLower(name))
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities
		 WHERE published = 1 AND type IN (`+in+`) AND lower(name) = ?
		 ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: find exact %q: %w", name, err)
	}
	return collectFacilities(rows)
}

// FindSubstring returns published facilities whose name contains the search
// term (case-insensitive) within the given type set, up to limit results.
func (s *Store) FindSubstring(ctx context.Context, name string, types []Type, limit int) ([]Facility, error) {
	if limit <= 0 {
		limit = 10
	}
	in, args := typePlaceholders(types)
	args = append(args, strings.ToLower(name), limit)
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities
		 WHERE published = 1 AND type IN (`+in+`) AND instr(lower(name), ?) > 0
		 ORDER BY name
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: find substring %q: %w", name, err)
	}
	return collectFacilities(rows)
}

// All returns every published facility in the given type set.
func (s *Store) All(ctx context.Context, types []Type) ([]Facility, error) {
	in, args := typePlaceholders(types)
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT `+facilityColumns+` FROM facilities
		 WHERE published = 1 AND type IN (`+in+`)
		 ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return collectFacilities(rows)
}

func collectFacilities(rows *sql.Rows) ([]Facility, error) {
	defer rows.Close()
	var out []Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan facility: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate facilities: %w", err)
	}
	return out, nil
}

// GetField reads the current value of a mutable field as its string form
// ("open"/"closed" for status, "true"/"false" for groomed).
func (s *Store) GetField(ctx context.Context, id int64, field string) (string, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch field {
	case FieldStatus:
		return f.Status, nil
	case FieldGroomed:
		if f.Groomed {
			return "true", nil
		}
		return "false", nil
	}
	return "", fmt.Errorf("catalog: unknown field %q", field)
}

// SetField writes a mutable field and reports whether the stored value
// actually changed. A write that matches the persisted value is a no-op
// and returns changed=false with no error.
func (s *Store) SetField(ctx context.Context, id int64, field, value string) (bool, error) {
	current, err := s.GetField(ctx, id, field)
	if err != nil {
		return false, err
	}
	if current == value {
		return false, nil
	}

	var query string
	var arg any
	switch field {
	case FieldStatus:
		if value != StatusOpen && value != StatusClosed {
			return false, fmt.Errorf("catalog: invalid status value %q", value)
		}
		query = `UPDATE facilities SET status = ?, updated_at = ? WHERE id = ?`
		arg = value
	case FieldGroomed:
		b, err := parseBoolField(value)
		if err != nil {
			return false, err
		}
		query = `UPDATE facilities SET groomed = ?, updated_at = ? WHERE id = ?`
		arg = boolToInt(b)
	default:
		return false, fmt.Errorf("catalog: unknown field %q", field)
	}

	if _, err := s.db.DB().ExecContext(ctx, query, arg, time.Now(), id); err != nil {
		return false, fmt.Errorf("catalog: set %s on %d: %w", field, id, err)
	}
	return true, nil
}

// Counts holds the open/total tally for one facility type.
type Counts struct {
	Open  int
	Total int
}

// StatusCounts tallies open and total published facilities per type.
func (s *Store) StatusCounts(ctx context.Context) (map[Type]Counts, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT type,
		       SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM facilities
		WHERE published = 1
		GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("catalog: status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Type]Counts)
	for rows.Next() {
		var t Type
		var c Counts
		if err := rows.Scan(&t, &c.Open, &c.Total); err != nil {
			return nil, fmt.Errorf("catalog: scan counts: %w", err)
		}
		counts[t] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate counts: %w", err)
	}
	return counts, nil
}

// Upsert creates or updates a facility identified by (type, lower(name)).
// Used by the seed loader; runtime code never creates facilities.
func (s *Store) Upsert(ctx context.Context, f Facility) error {
	now := time.Now()
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO facilities (type, name, status, groomed, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, lower(name)) DO UPDATE SET
			status     = excluded.status,
			groomed    = excluded.groomed,
			published  = excluded.published,
			updated_at = excluded.updated_at
	`, string(f.Type), f.Name, f.Status, boolToInt(f.Groomed), boolToInt(f.Published), now, now)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s %q: %w", f.Type, f.Name, err)
	}
	return nil
}

func parseBoolField(value string) (bool, error) {
	switch value {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("catalog: invalid groomed value %q", value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
