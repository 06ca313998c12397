package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/settle/internal/verdict"
)

// toMillis converts t to UTC unix milliseconds. The zero time maps to 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// marshalJSON encodes v without HTML escaping and without the encoder's
// trailing newline.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func marshalStates(states []verdict.Transition) (string, error) {
	if states == nil {
		states = []verdict.Transition{}
	}
	data, err := marshalJSON(states)
	if err != nil {
		return "", fmt.Errorf("marshal states: %w", err)
	}
	return data, nil
}

func unmarshalStates(data string) ([]verdict.Transition, error) {
	var states []verdict.Transition
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("unmarshal states: %w", err)
	}
	return states, nil
}

// marshalDiff returns NULL for a nil diff.
func marshalDiff(d *verdict.Diff) (sql.NullString, error) {
	if d == nil {
		return sql.NullString{}, nil
	}
	data, err := marshalJSON(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal diff: %w", err)
	}
	return sql.NullString{String: data, Valid: true}, nil
}

func unmarshalDiff(ns sql.NullString) (*verdict.Diff, error) {
	if !ns.Valid {
		return nil, nil
	}
	var d verdict.Diff
	if err := json.Unmarshal([]byte(ns.String), &d); err != nil {
		return nil, fmt.Errorf("unmarshal diff: %w", err)
	}
	return &d, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
