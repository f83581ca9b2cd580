package timex

import (
	"database/sql"
	"fmt"
	"time"
)

// Layout is the fixed-width UTC layout used for timestamps stored as TEXT.
// Fixed width keeps lexical order equal to chronological order.
const Layout = "2006-01-02T15:04:05.000000000Z"

// Format renders t in Layout.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse reads a timestamp written by Format. RFC 3339 is accepted as well.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NullString maps an optional time to a nullable TEXT column value.
func NullString(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: Format(*t), Valid: true}
}

// FromNullString is the inverse of NullString.
func FromNullString(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
