// internal/match/engine.go
package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/solatis/dupmatch/internal/expr"
	"github.com/solatis/dupmatch/internal/progress"
	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Duplicate matching engine.
 *
 * One Run walks the state machine
 *
 *   Idle -> LoadingRecords -> Scanning -> Finished | Cancelled | Failed
 *
 * Run workflow:
 *   1. Check preconditions; any failure is a *types.ConfigError and nothing
 *      is loaded
 *   2. LoadingRecords: fetch and project every record, group by group,
 *      checking cancellation after each group
 *   3. Scanning: visit the cartesian product, last group fastest; reject
 *      combinations that repeat a record, then apply the simple rule or the
 *      condition; resolve tags and replacements on a match
 *   4. Emit the final 100% update
 *
 * Cancellation is checked after every group load and after every
 * combination. A cancelled run returns the matches collected so far with a
 * nil error.
 *
 * Simple rule: for each field row up to the smallest selector count, every
 * group's value is present and all values are equal.
 */

// State is the lifecycle state of one run.
type State int

const (
	StateIdle State = iota
	StateLoadingRecords
	StateScanning
	StateFinished
	StateCancelled
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateLoadingRecords: "loading_records",
	StateScanning:       "scanning",
	StateFinished:       "finished",
	StateCancelled:      "cancelled",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RecordSource fetches full records by id.
type RecordSource interface {
	GetRecord(ctx context.Context, id types.RecordID) (types.Record, error)
}

// Group is one group of a run: its configuration and candidate record ids.
type Group struct {
	Spec      types.GroupSpec
	RecordIDs []types.RecordID
}

// Monitor receives progress and supplies the cooperative cancellation flag.
type Monitor interface {
	Progress(u progress.Update)
	Cancelled() bool
}

// Result is the outcome of a run.
type Result struct {
	Matches      []types.MatchTuple
	Combinations int64 // combinations visited
	State        State
}

// Config configures an Engine.
type Config struct {
	Source           RecordSource
	ProgressInterval time.Duration    // default progress.DefaultInterval
	Logger           *slog.Logger     // default discards
	Now              func() time.Time // default time.Now
}

// Engine runs duplicate scans against a record source. An Engine keeps no
// state between runs and may be shared; each run is independent.
type Engine struct {
	source   RecordSource
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		source:   cfg.Source,
		interval: cfg.ProgressInterval,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// plan is the validated, compiled form of a run's groups.
type plan struct {
	groups       []Group
	selectors    [][]Selector
	replacements []*expr.FieldRef // nil when the replacement is literal text
	minFields    int
}

// Validate checks a run's preconditions without loading anything.
func Validate(groups []Group) error {
	_, err := newPlan(groups)
	return err
}

func newPlan(groups []Group) (*plan, error) {
	if len(groups) < 2 {
		return nil, &types.ConfigError{Err: types.ErrTooFewGroups}
	}
	if len(groups) > types.MaxGroups {
		return nil, &types.ConfigError{Err: fmt.Errorf("%w: %d > %d", types.ErrTooManyGroups, len(groups), types.MaxGroups)}
	}

	p := &plan{
		groups:       groups,
		selectors:    make([][]Selector, len(groups)),
		replacements: make([]*expr.FieldRef, len(groups)),
	}
	for i, g := range groups {
		if len(g.Spec.Fields) == 0 {
			return nil, &types.ConfigError{Group: i + 1, Err: types.ErrNoFields}
		}
		if len(g.Spec.Fields) > types.MaxFieldsPerGroup {
			return nil, &types.ConfigError{Group: i + 1, Err: types.ErrTooManyFields}
		}
	}
	for i, g := range groups {
		if len(g.RecordIDs) == 0 {
			return nil, &types.ConfigError{Group: i + 1, Err: types.ErrEmptyGroup}
		}
	}

	p.minFields = len(groups[0].Spec.Fields)
	for i, g := range groups {
		sels, err := CompileSelectors(i+1, g.Spec.Fields)
		if err != nil {
			return nil, err
		}
		p.selectors[i] = sels
		p.minFields = min(p.minFields, len(sels))

		if g.Spec.Action.Kind == types.ActionReplace && g.Spec.Action.Field > len(sels) {
			return nil, &types.ConfigError{
				Group: i + 1,
				Err:   fmt.Errorf("%w: %s with %d fields", types.ErrInvalidAction, g.Spec.Action, len(sels)),
			}
		}

		if ref, ok := expr.ParseFieldRef(g.Spec.Replacement); ok {
			p.replacements[i] = &ref
		}
	}
	return p, nil
}

// Run executes one scan. cond nil selects the simple rule. mon may be nil.
// Returns a *types.ConfigError before any work when a precondition fails,
// and a wrapped store error when loading fails.
func (e *Engine) Run(ctx context.Context, groups []Group, cond expr.Node, mon Monitor) (Result, error) {
	if mon == nil {
		mon = nopMonitor{}
	}
	result := Result{State: StateIdle}

	p, err := newPlan(groups)
	if err != nil {
		result.State = StateFailed
		return result, err
	}

	e.warnUnresolvable(p)

	est := progress.NewEstimator(e.interval, e.now)
	cancelled := func() bool {
		return mon.Cancelled() || ctx.Err() != nil
	}

	result.State = StateLoadingRecords
	e.logger.Debug("scan state changed", "state", result.State, "groups", len(groups))

	loaded := make([][]types.ComparableRecord, len(groups))
	for i := range p.groups {
		records, err := e.loadGroup(ctx, i, p, est, mon)
		if err != nil {
			result.State = StateFailed
			return result, err
		}
		loaded[i] = records
		if cancelled() {
			result.State = StateCancelled
			e.logger.Info("scan cancelled", "state", StateLoadingRecords, "group", i+1)
			return result, nil
		}
	}

	result.State = StateScanning
	sizes := make([]int, len(loaded))
	for i, records := range loaded {
		sizes[i] = len(records)
	}
	total := productSize(sizes)
	e.logger.Debug("scan state changed", "state", result.State, "combinations", total)
	est.Restart(total, "Scanning for duplicates")

	tuple := make([]types.ComparableRecord, len(loaded))
	odo := newOdometer(sizes)
	for !odo.done {
		for g, idx := range odo.index {
			tuple[g] = loaded[g][idx]
		}

		matched, err := e.matches(tuple, p, cond)
		if err != nil {
			result.State = StateFailed
			return result, err
		}
		if matched {
			result.Matches = append(result.Matches, resolveReplacements(tuple, p))
		}

		result.Combinations++
		if u, ok := est.Tick(result.Combinations); ok {
			mon.Progress(u)
		}
		if cancelled() {
			result.State = StateCancelled
			e.logger.Info("scan cancelled",
				"combinations", result.Combinations,
				"matches", len(result.Matches))
			return result, nil
		}
		odo.next()
	}

	mon.Progress(est.Final())
	result.State = StateFinished
	e.logger.Info("scan finished",
		"combinations", result.Combinations,
		"matches", len(result.Matches))
	return result, nil
}

// warnUnresolvable logs replacement references that point outside every
// combination of the run. They resolve to absent and leave the replacement
// empty.
func (e *Engine) warnUnresolvable(p *plan) {
	for i, ref := range p.replacements {
		if ref == nil {
			continue
		}
		if ref.Group < 0 || ref.Group >= len(p.groups) ||
			ref.Field < 0 || ref.Field >= len(p.selectors[ref.Group]) {
			e.logger.Warn("replacement reference never resolves", "group", i+1, "reference", ref.String())
		}
	}
}

// loadGroup fetches and projects one group's records. Ids the source does
// not know are skipped.
func (e *Engine) loadGroup(ctx context.Context, i int, p *plan, est *progress.Estimator, mon Monitor) ([]types.ComparableRecord, error) {
	ids := p.groups[i].RecordIDs
	est.Restart(int64(len(ids)), fmt.Sprintf("Loading records of group %d", i+1))

	records := make([]types.ComparableRecord, 0, len(ids))
	for n, id := range ids {
		rec, err := e.source.GetRecord(ctx, id)
		if errors.Is(err, types.ErrRecordNotFound) {
			e.logger.Warn("skipping unknown record", "group", i+1, "record_id", id)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted fetch; Run reports the cancellation.
				return records, nil
			}
			return nil, fmt.Errorf("failed to load record %s of group %d: %w", id, i+1, err)
		}
		records = append(records, Project(rec, p.selectors[i]))

		if u, ok := est.Tick(int64(n + 1)); ok {
			mon.Progress(u)
		}
	}
	return records, nil
}

// matches applies the identity check and then the simple rule or cond.
func (e *Engine) matches(tuple []types.ComparableRecord, p *plan, cond expr.Node) (bool, error) {
	for i := range tuple {
		for j := i + 1; j < len(tuple); j++ {
			if tuple[i].ID == tuple[j].ID {
				return false, nil
			}
		}
	}

	if cond != nil {
		return expr.Evaluate(cond, tuple)
	}
	return simpleMatch(tuple, p.minFields), nil
}

// simpleMatch reports whether every field row below rows is present and
// equal across the tuple.
func simpleMatch(tuple []types.ComparableRecord, rows int) bool {
	for row := 0; row < rows; row++ {
		first := tuple[0].Compare[row].Value
		if first.IsAbsent() {
			return false
		}
		for _, rec := range tuple[1:] {
			if !expr.Equals(first, rec.Compare[row].Value) {
				return false
			}
		}
	}
	return true
}

type nopMonitor struct{}

func (nopMonitor) Progress(progress.Update) {}

func (nopMonitor) Cancelled() bool { return false }
