// internal/actions/actions.go
package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Applying duplicate actions to the store.
 *
 * Apply walks matched rows in order and, for every member, performs the
 * member's resolved action:
 *
 *   delete        -> remove the record
 *   suspend       -> mark suspended
 *   unsuspend     -> clear suspended
 *   tag           -> add the member tag when it is non-empty
 *   replace:F<n>  -> set compared field n to the member replacement when that
 *                    field was present and the replacement is non-empty
 *
 * Each member's record is fetched first; a record that cannot be fetched
 * (already removed by an earlier row, for example) is skipped silently.
 * A record is changed at most once per action for the lifetime of an
 * Applier, across every batch it applies. A failed mutation is not counted,
 * so retrying the returned rows retries it.
 */

// Store is the part of the record store that actions touch.
type Store interface {
	GetRecord(ctx context.Context, id types.RecordID) (types.Record, error)
	Remove(ctx context.Context, id types.RecordID) error
	SetSuspended(ctx context.Context, id types.RecordID, suspended bool) error
	AddTag(ctx context.Context, id types.RecordID, tag string) error
	SetField(ctx context.Context, id types.RecordID, name, value string) error
}

// Summary counts what one Apply call did.
type Summary struct {
	Rows        int // rows processed
	Removed     int
	Suspended   int
	Unsuspended int
	Tagged      int
	Replaced    int
	Skipped     int // members whose record could not be fetched
}

// Applier applies actions with logging. Not safe for concurrent use.
type Applier struct {
	store  Store
	logger *slog.Logger
	done   map[doneKey]bool
}

// NewApplier creates an Applier. A nil logger discards.
func NewApplier(store Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Applier{store: store, logger: logger, done: make(map[doneKey]bool)}
}

// Apply processes up to maxRows rows (all when maxRows <= 0) and returns the
// rows left for a later batch. Processing stops at the first store error;
// the row that failed is returned at the head of the remaining rows.
func (a *Applier) Apply(ctx context.Context, rows []types.MatchTuple, maxRows int) (Summary, []types.MatchTuple, error) {
	var sum Summary
	n := len(rows)
	if maxRows > 0 && maxRows < n {
		n = maxRows
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return sum, rows[i:], err
		}
		for _, member := range rows[i].Members {
			if err := a.applyMember(ctx, member, &sum); err != nil {
				return sum, rows[i:], err
			}
		}
		sum.Rows++
	}

	a.logger.Info("actions applied",
		"rows", sum.Rows,
		"removed", sum.Removed,
		"suspended", sum.Suspended,
		"unsuspended", sum.Unsuspended,
		"tagged", sum.Tagged,
		"replaced", sum.Replaced,
		"skipped", sum.Skipped,
		"remaining", len(rows)-n)
	return sum, rows[n:], nil
}

type doneKey struct {
	id     types.RecordID
	action string
}

func (a *Applier) applyMember(ctx context.Context, m types.ComparableRecord, sum *Summary) error {
	if m.Action.Kind == types.ActionNothing {
		return nil
	}
	key := doneKey{id: m.ID, action: m.Action.String()}
	if a.done[key] {
		return nil
	}

	rec, err := a.store.GetRecord(ctx, m.ID)
	if err != nil {
		a.logger.Debug("skipping record", "record_id", m.ID, "error", err)
		sum.Skipped++
		return nil
	}
	if err := a.mutate(ctx, rec, m, sum); err != nil {
		return err
	}
	a.done[key] = true
	return nil
}

func (a *Applier) mutate(ctx context.Context, rec types.Record, m types.ComparableRecord, sum *Summary) error {
	switch m.Action.Kind {
	case types.ActionDelete:
		if err := a.store.Remove(ctx, rec.ID); err != nil {
			return fmt.Errorf("failed to remove record %s: %w", rec.ID, err)
		}
		sum.Removed++
	case types.ActionSuspend:
		if err := a.store.SetSuspended(ctx, rec.ID, true); err != nil {
			return fmt.Errorf("failed to suspend record %s: %w", rec.ID, err)
		}
		sum.Suspended++
	case types.ActionUnsuspend:
		if err := a.store.SetSuspended(ctx, rec.ID, false); err != nil {
			return fmt.Errorf("failed to unsuspend record %s: %w", rec.ID, err)
		}
		sum.Unsuspended++
	case types.ActionTag:
		if strings.TrimSpace(m.Tag) == "" {
			return nil
		}
		if err := a.store.AddTag(ctx, rec.ID, m.Tag); err != nil {
			return fmt.Errorf("failed to tag record %s: %w", rec.ID, err)
		}
		sum.Tagged++
	case types.ActionReplace:
		field, ok := replaceTarget(m)
		if !ok || m.Replacement == "" {
			return nil
		}
		if err := a.store.SetField(ctx, rec.ID, field, m.Replacement); err != nil {
			return fmt.Errorf("failed to replace field %s of record %s: %w", field, rec.ID, err)
		}
		sum.Replaced++
	}
	return nil
}

// replaceTarget returns the name of the compared field a replace action
// overwrites, when that field was present on the member.
func replaceTarget(m types.ComparableRecord) (string, bool) {
	i := m.Action.Field - 1
	if i < 0 || i >= len(m.Compare) {
		return "", false
	}
	field := m.Compare[i]
	if field.Value.IsAbsent() {
		return "", false
	}
	return field.Name, true
}
