// internal/expr/evaluate_test.go
package expr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/dupmatch/internal/types"
)

// record builds a projected record whose compare fields hold values, in order.
// An empty string stands for an absent value.
func record(values ...string) types.ComparableRecord {
	rec := types.ComparableRecord{ID: types.NewRecordID()}
	for i, v := range values {
		value := types.Text(v)
		if v == "" {
			value = types.Absent()
		}
		rec.Compare = append(rec.Compare, types.ComparableField{Name: fmt.Sprintf("f%d", i+1), Value: value})
	}
	return rec
}

func TestRules(t *testing.T) {
	absent := types.Absent()
	text := types.Text

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{name: "equals same", got: Equals(text("Paris"), text("Paris")), want: true},
		{name: "equals case sensitive", got: Equals(text("Paris"), text("paris")), want: false},
		{name: "equals empty strings", got: Equals(text(""), text("")), want: true},
		{name: "equals absent left", got: Equals(absent, text("x")), want: false},
		{name: "equals both absent", got: Equals(absent, absent), want: false},
		{name: "contains word", got: Contains(text("cat"), text("the cat sat")), want: true},
		{name: "contains word ignores case", got: Contains(text("CAT"), text("the cat sat")), want: true},
		{name: "contains needs whole word", got: Contains(text("cat"), text("the cats sat")), want: false},
		{name: "contains word with punctuation", got: Contains(text("cat"), text("cat, dog")), want: true},
		{name: "contains regex metachars", got: Contains(text("a.b"), text("x a.b y")), want: true},
		{name: "contains phrase", got: Contains(text("cat sat"), text("the cat sat")), want: true},
		{name: "contains phrase case sensitive", got: Contains(text("Cat sat"), text("the cat sat")), want: false},
		{name: "contains absent right", got: Contains(text("cat"), absent), want: false},
		{name: "contains accented word in itself", got: Contains(text("café"), text("café")), want: true},
		{name: "contains accented word", got: Contains(text("café"), text("un café noir")), want: true},
		{name: "contains accented word ignores case", got: Contains(text("CAFÉ"), text("un café noir")), want: true},
		{name: "contains accented needs whole word", got: Contains(text("café"), text("cafés")), want: false},
		{name: "contains cyrillic word", got: Contains(text("привет"), text("привет мир")), want: true},
		{name: "contains cyrillic needs whole word", got: Contains(text("привет"), text("приветствую мир")), want: false},
		{name: "contains accent ends word", got: Contains(text("cat"), text("catégorie")), want: false},
		{name: "contains accent starts word", got: Contains(text("né"), text("bébé est né.")), want: true},
		{name: "contains underscore is a word rune", got: Contains(text("cat"), text("cat_dog")), want: false},
		{name: "contains digits are word runes", got: Contains(text("cat"), text("cat9 dog")), want: false},
		{name: "contains second occurrence", got: Contains(text("cat"), text("cats and cat")), want: true},
		{name: "substring", got: Substring(text("cat"), text("concatenate")), want: true},
		{name: "substring case sensitive", got: Substring(text("Cat"), text("concatenate")), want: false},
		{name: "substring absent", got: Substring(absent, text("x")), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRules_Patterns(t *testing.T) {
	digits, err := NewPattern(`[0-9]+`)
	if err != nil {
		t.Fatalf("NewPattern() error = %v", err)
	}

	if !PatternFull(types.Text("123"), digits) {
		t.Errorf("PatternFull(123) = false, want true")
	}
	if PatternFull(types.Text("a123"), digits) {
		t.Errorf("PatternFull(a123) = true, want false")
	}
	if PatternFull(types.Absent(), digits) {
		t.Errorf("PatternFull(absent) = true, want false")
	}
	if !PatternSearch(digits, types.Text("a123")) {
		t.Errorf("PatternSearch(a123) = false, want true")
	}
	if PatternSearch(digits, types.Absent()) {
		t.Errorf("PatternSearch(absent) = true, want false")
	}
}

func TestResolve(t *testing.T) {
	first := record("Paris", "12 rue de Rivoli")
	first.Compare[1].Captures = []types.Value{types.Text("  12 "), types.Absent()}
	second := record("Lyon")
	tuple := []types.ComparableRecord{first, second}

	tests := []struct {
		name string
		ref  FieldRef
		want types.Value
	}{
		{name: "plain field", ref: FieldRef{Group: 1, Field: 0}, want: types.Text("Lyon")},
		{name: "capture trimmed", ref: FieldRef{Group: 0, Field: 1, Capture: 0, HasCapture: true}, want: types.Text("12")},
		{name: "unmatched capture", ref: FieldRef{Group: 0, Field: 1, Capture: 1, HasCapture: true}, want: types.Absent()},
		{name: "capture out of range", ref: FieldRef{Group: 0, Field: 1, Capture: 5, HasCapture: true}, want: types.Absent()},
		{name: "field without captures", ref: FieldRef{Group: 1, Field: 0, Capture: 0, HasCapture: true}, want: types.Absent()},
		{name: "group out of range", ref: FieldRef{Group: 2, Field: 0}, want: types.Absent()},
		{name: "field out of range", ref: FieldRef{Group: 1, Field: 3}, want: types.Absent()},
		{name: "negative group", ref: FieldRef{Group: -1, Field: 0}, want: types.Absent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.ref, tuple); got != tt.want {
				t.Errorf("Resolve(%s) = %v, want %v", tt.ref, got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	tuple := []types.ComparableRecord{
		record("Lorem ipsum dolor", "Paris", "75001"),
		record("lorem ipsum", "Paris", "75002"),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "equal fields", expr: "G1F2 = G2F2", want: true},
		{name: "different fields", expr: "G1F3 = G2F3", want: false},
		{name: "literal", expr: "G1F2 = 'Paris'", want: true},
		{name: "pattern full", expr: "G1F3 = /750[0-9]{2}/", want: true},
		{name: "pattern search", expr: "/ipsum/ in G2F1", want: true},
		{name: "word in text", expr: "'dolor' in G1F1", want: true},
		{name: "phrase in text", expr: "G2F1 in G1F1", want: false},
		{name: "substring", expr: "'psu' > G2F1", want: true},
		{name: "and", expr: "G1F2 = G2F2 and G1F3 = G2F3", want: false},
		{name: "or", expr: "G1F2 = G2F2 or G1F3 = G2F3", want: true},
		{name: "left to right", expr: "G1F3 = G2F3 and G1F3 = G2F3 or G1F2 = G2F2", want: true},
		{name: "brackets group", expr: "G1F3 = G2F3 and (G1F3 = G2F3 or G1F2 = G2F2)", want: false},
		{name: "absent field", expr: "G1F9 = G1F9", want: false},
		{name: "missing group", expr: "G3F1 = G1F1", want: false},
		{
			name: "nested groups",
			expr: "((G1F2 = G2F2 and /^750/ in G2F3) or G1F1 = G2F1) and ('lorem' in G1F1)",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.expr, err)
			}
			got, err := Evaluate(node, tuple)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_LenientOperatorSequencing(t *testing.T) {
	yes := MustParse("'a' = 'a'")
	no := MustParse("'a' = 'b'")
	and := Operator{Op: OpAnd}
	or := Operator{Op: OpOr}

	tests := []struct {
		name     string
		children []Node
		want     bool
		wantErr  bool
	}{
		{name: "later operator wins", children: []Node{no, and, or, yes}, want: true},
		{name: "later operator wins and", children: []Node{yes, or, and, no}, want: false},
		{name: "trailing operator ignored", children: []Node{yes, and}, want: true},
		{name: "leading operator", children: []Node{and, yes}, wantErr: true},
		{name: "missing operator", children: []Node{yes, yes}, wantErr: true},
		{name: "empty group", children: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(Group{Children: tt.children, Source: tt.name}, nil)
			if tt.wantErr {
				if !errors.Is(err, types.ErrEvaluation) {
					t.Errorf("Evaluate() error = %v, want ErrEvaluation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_BareOperator(t *testing.T) {
	_, err := Evaluate(Operator{Op: OpOr}, nil)
	if !errors.Is(err, types.ErrEvaluation) {
		t.Errorf("Evaluate(operator) error = %v, want ErrEvaluation", err)
	}
}

// Property-based test: any tree that parses evaluates without error
func TestEvaluate_PropertyParsedTreesEvaluate(t *testing.T) {
	atoms := []string{
		"G1F1 = G2F1",
		"G1F2 in G2F2",
		"/^[a-z]+$/ in G2F1",
		"G1F1 > 'abc'",
		"G3F1 = G1F1",
		"G1F2R1 = 'x'",
	}
	tuple := []types.ComparableRecord{record("abc", "one two"), record("abc", "two")}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parsed conditions never fail to evaluate", prop.ForAll(
		func(picks []int, ors []bool, wrap []bool) bool {
			var b strings.Builder
			for i, pick := range picks {
				if i > 0 {
					if ors[i] {
						b.WriteString(" or ")
					} else {
						b.WriteString(" and ")
					}
				}
				if wrap[i] && i+1 < len(picks) {
					b.WriteString("(" + atoms[pick] + " or " + atoms[picks[i+1]] + ")")
					continue
				}
				b.WriteString(atoms[pick])
			}

			node, err := Parse(b.String())
			if err != nil {
				t.Logf("Parse(%q) error = %v", b.String(), err)
				return false
			}
			_, err = Evaluate(node, tuple)
			return err == nil
		},
		gen.SliceOfN(5, gen.IntRange(0, len(atoms)-1)),
		gen.SliceOfN(5, gen.Bool()),
		gen.SliceOfN(5, gen.Bool()),
	))

	properties.TestingRun(t)
}
