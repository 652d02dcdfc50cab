// internal/types/match.go
package types

/*
 * Domain types for duplicate matching.
 *
 * Provides GroupSpec, FieldSelector, ComparableField, ComparableRecord and
 * MatchTuple used by internal/expr for evaluation and by internal/match for
 * projection and scanning. These types are storage agnostic - row structs
 * live in internal/store.
 *
 * Key types:
 *   - FieldSelector: one field chosen for a group, with optional capture pattern
 *   - GroupSpec: per-group configuration (source, selectors, default action)
 *   - ComparableRecord: a record projected onto its group's selectors
 *   - MatchTuple: one duplicate combination, one member per group
 *
 * Dependencies: None (standard library only)
 */

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldSelector identifies one field chosen for a group.
// Order in GroupSpec.Fields defines the 1-based field index used by
// references such as G1F2.
type FieldSelector struct {
	Field    string     // field name within Category
	Category CategoryID // owning category, checked against each record
	Capture  string     // optional capture pattern (Go regexp syntax)
}

// SourceKind selects how a group's candidate records are found.
type SourceKind int

const (
	SourceUnspecified SourceKind = iota
	SourceCollection             // a collection and its descendants
	SourceCategory               // every record of a category
	SourceTags                   // records carrying all listed tags
	SourceRecords                // an ad-hoc selection of record ids
)

var sourceKindNames = map[SourceKind]string{
	SourceCollection: "collection",
	SourceCategory:   "category",
	SourceTags:       "tags",
	SourceRecords:    "records",
}

func (k SourceKind) String() string {
	if name, ok := sourceKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// ParseSourceKind converts a configuration string to SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range sourceKindNames {
		if name == s {
			return kind, nil
		}
	}
	return SourceUnspecified, fmt.Errorf("%w: source kind %q", ErrUnknownSource, s)
}

// GroupSource describes where a group's records come from.
type GroupSource struct {
	Kind    SourceKind
	Name    string     // collection or category name
	Tags    []string   // for SourceTags
	Records []RecordID // for SourceRecords
}

// GroupSpec is the per-group configuration of a matching run.
type GroupSpec struct {
	Source      GroupSource
	Fields      []FieldSelector
	Action      Action // default action for members of matched tuples
	Tag         string // tag applied by ActionTag
	Replacement string // literal text or a field reference like G2F1
}

// ActionKind mirrors the duplicate actions offered for matched records.
type ActionKind int

const (
	ActionNothing ActionKind = iota
	ActionDelete
	ActionSuspend
	ActionUnsuspend
	ActionTag
	ActionReplace
)

// Action is a duplicate action. Field is the 1-based compared field that
// ActionReplace overwrites; it is zero for every other kind.
type Action struct {
	Kind  ActionKind
	Field int
}

func (a Action) String() string {
	switch a.Kind {
	case ActionDelete:
		return "delete"
	case ActionSuspend:
		return "suspend"
	case ActionUnsuspend:
		return "unsuspend"
	case ActionTag:
		return "tag"
	case ActionReplace:
		return fmt.Sprintf("replace:F%d", a.Field)
	default:
		return "nothing"
	}
}

// ParseAction converts "nothing", "delete", "suspend", "unsuspend", "tag" or
// "replace:F<n>" to an Action. The empty string means nothing.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "nothing":
		return Action{Kind: ActionNothing}, nil
	case "delete":
		return Action{Kind: ActionDelete}, nil
	case "suspend":
		return Action{Kind: ActionSuspend}, nil
	case "unsuspend":
		return Action{Kind: ActionUnsuspend}, nil
	case "tag":
		return Action{Kind: ActionTag}, nil
	}
	if rest, ok := strings.CutPrefix(s, "replace:f"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n > 0 {
			return Action{Kind: ActionReplace, Field: n}, nil
		}
	}
	return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// ComparableField is the projection of one selector against one record.
type ComparableField struct {
	Name     string
	Value    Value      // trimmed text, or absent when the field does not apply
	Category CategoryID // empty when Value is absent
	Captures []Value    // nil unless the capture pattern matched with groups
}

// ComparableRecord is one record projected onto its group's selectors.
// Created fresh per run; only Action, Tag and Replacement change once a
// match is confirmed.
type ComparableRecord struct {
	ID      RecordID
	Fields  map[string]string
	Tags    []string
	Compare []ComparableField // index = field position in the group's selectors

	Action      Action
	Tag         string
	Replacement string
}

// MatchTuple is one duplicate combination, one member per group in group
// order. Members are copies; changing one tuple never affects another.
type MatchTuple struct {
	Members []ComparableRecord
}
