// internal/match/engine_test.go
package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/solatis/dupmatch/internal/expr"
	"github.com/solatis/dupmatch/internal/progress"
	"github.com/solatis/dupmatch/internal/types"
)

// memorySource serves records from a map.
type memorySource struct {
	records map[types.RecordID]types.Record
	err     error
	calls   int
}

func (s *memorySource) GetRecord(_ context.Context, id types.RecordID) (types.Record, error) {
	s.calls++
	if s.err != nil {
		return types.Record{}, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return types.Record{}, types.ErrRecordNotFound
	}
	return rec, nil
}

func newSource(records ...types.Record) *memorySource {
	s := &memorySource{records: make(map[types.RecordID]types.Record)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func note(id, front string) types.Record {
	return types.Record{ID: types.RecordID(id), Category: "basic", Fields: map[string]string{"Front": front}}
}

func frontGroup(ids ...types.RecordID) Group {
	return Group{
		Spec:      types.GroupSpec{Fields: []types.FieldSelector{{Field: "Front", Category: "basic"}}},
		RecordIDs: ids,
	}
}

// recordingMonitor keeps every update and cancels once Cancelled has been
// asked cancelAt times.
type recordingMonitor struct {
	updates  []progress.Update
	checks   int
	cancelAt int
}

func (m *recordingMonitor) Progress(u progress.Update) { m.updates = append(m.updates, u) }

func (m *recordingMonitor) Cancelled() bool {
	m.checks++
	return m.cancelAt > 0 && m.checks >= m.cancelAt
}

func TestRun_SimpleModeIsCaseSensitive(t *testing.T) {
	source := newSource(note("a", "Paris"), note("b", "paris"), note("c", "Paris"))
	engine := NewEngine(Config{Source: source})

	result, err := engine.Run(context.Background(), []Group{frontGroup("a"), frontGroup("b", "c")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.State != StateFinished {
		t.Errorf("State = %v, want finished", result.State)
	}
	if result.Combinations != 2 {
		t.Errorf("Combinations = %d, want 2", result.Combinations)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("len(Matches) = %d, want 1", len(result.Matches))
	}
	members := result.Matches[0].Members
	if members[0].ID != "a" || members[1].ID != "c" {
		t.Errorf("match = %s/%s, want a/c", members[0].ID, members[1].ID)
	}
}

func TestRun_SimpleModeUsesSmallestFieldCount(t *testing.T) {
	source := newSource(
		types.Record{ID: "a", Category: "basic", Fields: map[string]string{"Front": "x", "Back": "1"}},
		types.Record{ID: "b", Category: "basic", Fields: map[string]string{"Front": "x", "Back": "2"}},
	)
	wide := Group{
		Spec: types.GroupSpec{Fields: []types.FieldSelector{
			{Field: "Front", Category: "basic"},
			{Field: "Back", Category: "basic"},
		}},
		RecordIDs: []types.RecordID{"a"},
	}
	engine := NewEngine(Config{Source: source})

	result, err := engine.Run(context.Background(), []Group{wide, frontGroup("b")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Matches) != 1 {
		t.Errorf("len(Matches) = %d, want 1 (only the first row compared)", len(result.Matches))
	}
}

func TestRun_AbsentNeverMatches(t *testing.T) {
	source := newSource(
		types.Record{ID: "a", Category: "basic", Fields: map[string]string{}},
		types.Record{ID: "b", Category: "basic", Fields: map[string]string{}},
	)
	engine := NewEngine(Config{Source: source})

	result, err := engine.Run(context.Background(), []Group{frontGroup("a"), frontGroup("b")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Matches) != 0 {
		t.Errorf("len(Matches) = %d, want 0", len(result.Matches))
	}
}

func TestRun_IdentityRejected(t *testing.T) {
	source := newSource(note("a", "same"), note("b", "same"))
	engine := NewEngine(Config{Source: source})

	overlapping := []Group{frontGroup("a", "b"), frontGroup("a", "b")}
	result, err := engine.Run(context.Background(), overlapping, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Combinations != 4 {
		t.Errorf("Combinations = %d, want 4", result.Combinations)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2 (a/b and b/a)", len(result.Matches))
	}
	for _, m := range result.Matches {
		if m.Members[0].ID == m.Members[1].ID {
			t.Errorf("match pairs record %s with itself", m.Members[0].ID)
		}
	}
}

func TestRun_Condition(t *testing.T) {
	source := newSource(note("g1", "lorem ipsum"), note("g2", "lorem"))
	engine := NewEngine(Config{Source: source})
	groups := []Group{frontGroup("g1"), frontGroup("g2")}

	tests := []struct {
		cond string
		want int
	}{
		{cond: "G1F1 in G2F1", want: 0},
		{cond: "G2F1 in G1F1", want: 1},
		{cond: "G1F1 = G2F1", want: 0},
		{cond: "/^lorem/ in G1F1 and /^lorem/ in G2F1", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			result, err := engine.Run(context.Background(), groups, expr.MustParse(tt.cond), nil)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(result.Matches) != tt.want {
				t.Errorf("len(Matches) = %d, want %d", len(result.Matches), tt.want)
			}
		})
	}
}

func TestRun_EvaluationErrorFails(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "x"))
	engine := NewEngine(Config{Source: source})
	bad := expr.Group{Children: []expr.Node{expr.Operator{Op: expr.OpAnd}}, Source: "and"}

	result, err := engine.Run(context.Background(), []Group{frontGroup("a"), frontGroup("b")}, bad, nil)
	if !errors.Is(err, types.ErrEvaluation) {
		t.Fatalf("Run() error = %v, want ErrEvaluation", err)
	}
	if result.State != StateFailed {
		t.Errorf("State = %v, want failed", result.State)
	}
}

func TestRun_Preconditions(t *testing.T) {
	ok := frontGroup("a")
	tests := []struct {
		name      string
		groups    []Group
		wantErr   error
		wantGroup int
	}{
		{name: "one group", groups: []Group{ok}, wantErr: types.ErrTooFewGroups},
		{
			name:      "no fields",
			groups:    []Group{ok, {RecordIDs: []types.RecordID{"b"}}},
			wantErr:   types.ErrNoFields,
			wantGroup: 2,
		},
		{name: "empty group", groups: []Group{frontGroup(), ok}, wantErr: types.ErrEmptyGroup, wantGroup: 1},
		{
			name: "no fields reported before empty group",
			groups: []Group{frontGroup(), {RecordIDs: []types.RecordID{"b"}}},
			wantErr:   types.ErrNoFields,
			wantGroup: 2,
		},
		{
			name: "invalid capture",
			groups: []Group{ok, {
				Spec:      types.GroupSpec{Fields: []types.FieldSelector{{Field: "Front", Capture: "("}}},
				RecordIDs: []types.RecordID{"b"},
			}},
			wantErr:   types.ErrInvalidCapture,
			wantGroup: 2,
		},
		{
			name: "replace action beyond fields",
			groups: []Group{{
				Spec: types.GroupSpec{
					Fields: []types.FieldSelector{{Field: "Front"}},
					Action: types.Action{Kind: types.ActionReplace, Field: 2},
				},
				RecordIDs: []types.RecordID{"a"},
			}, ok},
			wantErr:   types.ErrInvalidAction,
			wantGroup: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newSource(note("a", "x"), note("b", "x"))
			engine := NewEngine(Config{Source: source})

			result, err := engine.Run(context.Background(), tt.groups, nil, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type = %T, want *types.ConfigError", err)
			}
			if cfgErr.Group != tt.wantGroup {
				t.Errorf("Group = %d, want %d", cfgErr.Group, tt.wantGroup)
			}
			if source.calls != 0 {
				t.Errorf("source called %d times before preconditions passed", source.calls)
			}
			if len(result.Matches) != 0 || result.State != StateFailed {
				t.Errorf("result = %+v, want failed and empty", result)
			}
		})
	}
}

func TestRun_TooManyGroups(t *testing.T) {
	groups := make([]Group, types.MaxGroups+1)
	for i := range groups {
		groups[i] = frontGroup("a")
	}
	_, err := NewEngine(Config{Source: newSource()}).Run(context.Background(), groups, nil, nil)
	if !errors.Is(err, types.ErrTooManyGroups) {
		t.Errorf("Run() error = %v, want ErrTooManyGroups", err)
	}
}

func TestRun_CancelMidScan(t *testing.T) {
	const k = 3
	var records []types.Record
	var ids []types.RecordID
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("r%d", i)
		records = append(records, note(id, "same"))
		ids = append(ids, types.RecordID(id))
	}
	source := newSource(records...)
	engine := NewEngine(Config{Source: source})

	// Two checks happen after the group loads, then one per combination.
	mon := &recordingMonitor{cancelAt: 2 + k}
	result, err := engine.Run(context.Background(), []Group{frontGroup(ids...), frontGroup(ids...)}, nil, mon)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != StateCancelled {
		t.Errorf("State = %v, want cancelled", result.State)
	}
	if result.Combinations != k {
		t.Errorf("Combinations = %d, want %d", result.Combinations, k)
	}
	// r0/r0 is rejected, r0/r1 and r0/r2 match.
	if len(result.Matches) != 2 {
		t.Errorf("len(Matches) = %d, want 2", len(result.Matches))
	}
	for _, u := range mon.updates {
		if u.Percent == 100 && u.Activity == "Scanning for duplicates" {
			t.Errorf("cancelled run emitted the final update")
		}
	}
}

func TestRun_CancelDuringLoad(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "x"))
	mon := &recordingMonitor{cancelAt: 1}

	result, err := NewEngine(Config{Source: source}).Run(context.Background(), []Group{frontGroup("a"), frontGroup("b")}, nil, mon)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != StateCancelled {
		t.Errorf("State = %v, want cancelled", result.State)
	}
	if source.calls != 1 {
		t.Errorf("source calls = %d, want 1 (second group never loaded)", source.calls)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine(Config{Source: newSource(note("a", "x"), note("b", "x"))}).
		Run(ctx, []Group{frontGroup("a"), frontGroup("b")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.State != StateCancelled {
		t.Errorf("State = %v, want cancelled", result.State)
	}
}

// ctxSource fails like a driver does once its context is cancelled.
type ctxSource struct {
	*memorySource
	cancel context.CancelFunc
}

func (s *ctxSource) GetRecord(ctx context.Context, id types.RecordID) (types.Record, error) {
	s.cancel()
	return types.Record{}, ctx.Err()
}

func TestRun_InterruptedFetchIsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &ctxSource{memorySource: newSource(), cancel: cancel}

	result, err := NewEngine(Config{Source: source}).
		Run(ctx, []Group{frontGroup("a"), frontGroup("b")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.State != StateCancelled {
		t.Errorf("State = %v, want cancelled", result.State)
	}
}

func TestRun_SkipsUnknownRecords(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "x"))
	result, err := NewEngine(Config{Source: source}).
		Run(context.Background(), []Group{frontGroup("a", "gone"), frontGroup("b")}, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Combinations != 1 || len(result.Matches) != 1 {
		t.Errorf("result = %d combinations %d matches, want 1 and 1", result.Combinations, len(result.Matches))
	}
}

func TestRun_SourceErrorFails(t *testing.T) {
	source := newSource(note("a", "x"))
	source.err = errors.New("connection refused")

	result, err := NewEngine(Config{Source: source}).
		Run(context.Background(), []Group{frontGroup("a"), frontGroup("a")}, nil, nil)
	if err == nil || !errors.Is(err, source.err) {
		t.Fatalf("Run() error = %v, want wrapped source error", err)
	}
	if result.State != StateFailed {
		t.Errorf("State = %v, want failed", result.State)
	}
}

func TestRun_ReplacementResolution(t *testing.T) {
	source := newSource(
		types.Record{ID: "a", Category: "basic", Fields: map[string]string{"Front": "dog", "Back": "old"}},
		types.Record{ID: "b", Category: "basic", Fields: map[string]string{"Front": "dog", "Back": "new"}},
	)
	fields := []types.FieldSelector{{Field: "Front", Category: "basic"}, {Field: "Back", Category: "basic"}}
	groups := []Group{
		{
			Spec: types.GroupSpec{
				Fields:      fields,
				Action:      types.Action{Kind: types.ActionReplace, Field: 2},
				Replacement: "G2F2",
				Tag:         "dup",
			},
			RecordIDs: []types.RecordID{"a"},
		},
		{
			Spec: types.GroupSpec{
				Fields:      fields,
				Action:      types.Action{Kind: types.ActionTag},
				Replacement: "kept",
				Tag:         "original",
			},
			RecordIDs: []types.RecordID{"b"},
		},
	}

	result, err := NewEngine(Config{Source: source}).
		Run(context.Background(), groups, expr.MustParse("G1F1 = G2F1"), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("len(Matches) = %d, want 1", len(result.Matches))
	}

	first, second := result.Matches[0].Members[0], result.Matches[0].Members[1]
	if first.Replacement != "new" {
		t.Errorf("first Replacement = %q, want resolved %q", first.Replacement, "new")
	}
	if first.Tag != "dup" || first.Action.Kind != types.ActionReplace {
		t.Errorf("first = %s/%q, want replace:F2/dup", first.Action, first.Tag)
	}
	if second.Replacement != "kept" {
		t.Errorf("second Replacement = %q, want literal %q", second.Replacement, "kept")
	}
	if second.Tag != "original" {
		t.Errorf("second Tag = %q, want original", second.Tag)
	}
}

func TestRun_AbsentReplacementLeftEmpty(t *testing.T) {
	tests := []struct {
		name        string
		replacement string
	}{
		{name: "capture without groups", replacement: "G2F1R1"},
		{name: "group beyond run", replacement: "G3F1"},
		{name: "field beyond group", replacement: "G2F2"},
		{name: "zero field", replacement: "G1F0"},
		{name: "zero group", replacement: "G0F1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := newSource(note("a", "x"), note("b", "x"))
			groups := []Group{frontGroup("a"), frontGroup("b")}
			groups[0].Spec.Replacement = tt.replacement

			result, err := NewEngine(Config{Source: source}).Run(context.Background(), groups, nil, nil)
			if err != nil {
				t.Fatalf("Run() error = %v, want nil", err)
			}
			if result.State != StateFinished {
				t.Errorf("State = %v, want finished", result.State)
			}
			if len(result.Matches) != 1 {
				t.Fatalf("len(Matches) = %d, want 1", len(result.Matches))
			}
			if got := result.Matches[0].Members[0].Replacement; got != "" {
				t.Errorf("Replacement = %q, want empty for an absent reference", got)
			}
		})
	}
}

func TestRun_MatchesAreIndependent(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "x"), note("c", "x"))
	groups := []Group{frontGroup("a"), frontGroup("b", "c")}
	groups[0].Spec.Replacement = "G2F1"

	result, err := NewEngine(Config{Source: source}).Run(context.Background(), groups, nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(result.Matches))
	}
	result.Matches[0].Members[0].Replacement = "changed"
	if result.Matches[1].Members[0].Replacement != "x" {
		t.Errorf("changing one tuple changed another")
	}
}

// steppingClock advances by step on every reading.
type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRun_Progress(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "y"), note("c", "x"))
	clock := &steppingClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: 2 * time.Second}
	engine := NewEngine(Config{Source: source, ProgressInterval: time.Second, Now: clock.Now})
	mon := &recordingMonitor{}

	_, err := engine.Run(context.Background(), []Group{frontGroup("a", "b"), frontGroup("c")}, nil, mon)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(mon.updates) == 0 {
		t.Fatalf("no progress updates")
	}

	sawLoading := false
	for _, u := range mon.updates {
		if u.Activity == "Loading records of group 1" {
			sawLoading = true
		}
	}
	if !sawLoading {
		t.Errorf("no update labelled for loading group 1")
	}

	last := mon.updates[len(mon.updates)-1]
	if last.Percent != 100 || last.Current != 2 || last.Total != 2 {
		t.Errorf("last update = %+v, want 100%% of 2 combinations", last)
	}
}

func TestRun_ProgressThrottled(t *testing.T) {
	source := newSource(note("a", "x"), note("b", "x"), note("c", "x"))
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(Config{Source: source, Now: func() time.Time { return frozen }})
	mon := &recordingMonitor{}

	_, err := engine.Run(context.Background(), []Group{frontGroup("a", "b"), frontGroup("c")}, nil, mon)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(mon.updates) != 1 {
		t.Errorf("len(updates) = %d, want only the final update", len(mon.updates))
	}
}
