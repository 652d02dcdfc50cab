// Package types provides domain models shared across dupmatch components.
//
// Zero-dependency design: types.go, match.go and errors.go use only the
// standard library so that internal/expr and internal/match stay free of
// storage concerns. ID utilities in ids.go import uuid but are isolated.
//
// Separation from storage: row structs for the SQL store live in
// internal/store. This package holds the hand-written types every layer
// agrees on (records, values, selectors, match tuples, error taxonomy).
package types

import "strings"

// RecordID identifies one record in the record store.
// String alias keeps ids opaque while serializing as plain strings.
type RecordID string

// CategoryID identifies a record category (a record's type and field schema).
type CategoryID string

// CollectionID identifies a collection of records.
type CollectionID string

// RunID identifies one matching run for log correlation.
type RunID string

// Value is a field value that may be absent.
// Absent means "this field does not apply to this record" and always fails
// comparisons. The zero Value is absent, so the text "false" or "" coming
// from real record data can never be mistaken for it.
type Value struct {
	text    string
	present bool
}

// Absent returns the absent sentinel.
func Absent() Value {
	return Value{}
}

// Text returns a present value holding s.
func Text(s string) Value {
	return Value{text: s, present: true}
}

// IsAbsent reports whether v is the absent sentinel.
func (v Value) IsAbsent() bool {
	return !v.present
}

// Get returns the text and whether it is present.
func (v Value) Get() (string, bool) {
	return v.text, v.present
}

// Trimmed returns v with surrounding whitespace removed. Absent stays absent.
func (v Value) Trimmed() Value {
	if !v.present {
		return v
	}
	return Text(strings.TrimSpace(v.text))
}

// String renders the value for display; absent renders as "<absent>".
func (v Value) String() string {
	if !v.present {
		return "<absent>"
	}
	return v.text
}

// Record is a raw record as stored: fields, tags and owning category.
type Record struct {
	ID         RecordID
	Category   CategoryID
	Collection CollectionID
	Fields     map[string]string
	Tags       []string
	Suspended  bool
}

// Category describes a record type and its ordered field schema.
type Category struct {
	ID     CategoryID
	Name   string
	Fields []string
}

// HasField reports whether the category schema declares name.
func (c Category) HasField(name string) bool {
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Collection is a named collection of records. Collections form a tree;
// Parent is empty for top-level collections.
type Collection struct {
	ID     CollectionID
	Name   string
	Parent CollectionID
}

// Resource limits enforced when building runs.
const (
	// MaxGroups bounds the number of groups in one run.
	MaxGroups = 8

	// MaxFieldsPerGroup bounds the selector list of one group.
	MaxFieldsPerGroup = 32

	// MaxExpressionLength bounds the raw condition text.
	MaxExpressionLength = 64 * 1024
)
