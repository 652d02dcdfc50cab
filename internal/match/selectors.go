// internal/match/selectors.go
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Selector compilation and record projection.
 *
 * A group's selectors are compiled once per run. Projection then turns each
 * raw record into a ComparableRecord whose Compare slice lines up with the
 * selectors, so GxFy indexes the same field for every record of group x.
 *
 * Projection never fails. A record of another category, or one missing the
 * field, projects to an absent value with no category, so mixed-category
 * collections take part in a scan and simply never match on that field.
 */

// Selector is a FieldSelector with its capture pattern compiled.
type Selector struct {
	types.FieldSelector
	capture *regexp.Regexp
}

// CompileSelectors compiles the capture patterns of one group's selectors.
// group is the 1-based group number used in errors.
func CompileSelectors(group int, fields []types.FieldSelector) ([]Selector, error) {
	selectors := make([]Selector, len(fields))
	for i, f := range fields {
		selectors[i] = Selector{FieldSelector: f}
		if strings.TrimSpace(f.Capture) == "" {
			continue
		}
		re, err := regexp.Compile(f.Capture)
		if err != nil {
			return nil, &types.ConfigError{
				Group: group,
				Err:   fmt.Errorf("%w: field %s: %v", types.ErrInvalidCapture, f.Field, err),
			}
		}
		selectors[i].capture = re
	}
	return selectors, nil
}

// Project builds the comparable view of rec for the given selectors.
func Project(rec types.Record, selectors []Selector) types.ComparableRecord {
	out := types.ComparableRecord{
		ID:      rec.ID,
		Fields:  rec.Fields,
		Tags:    rec.Tags,
		Compare: make([]types.ComparableField, len(selectors)),
	}
	for i, sel := range selectors {
		out.Compare[i] = projectField(rec, sel)
	}
	return out
}

func projectField(rec types.Record, sel Selector) types.ComparableField {
	field := types.ComparableField{Name: sel.Field, Value: types.Absent()}

	if sel.Category != "" && rec.Category != sel.Category {
		return field
	}
	text, ok := rec.Fields[sel.Field]
	if !ok {
		return field
	}

	text = strings.TrimSpace(text)
	field.Value = types.Text(text)
	field.Category = rec.Category
	if sel.capture != nil {
		field.Captures = captures(sel.capture, text)
	}
	return field
}

// captures returns the capture groups of the first match of re in text.
// No match, or a pattern without groups, gives nil. A group that did not
// take part in the match is absent.
func captures(re *regexp.Regexp, text string) []types.Value {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil || len(loc) <= 2 {
		return nil
	}
	values := make([]types.Value, 0, len(loc)/2-1)
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			values = append(values, types.Absent())
			continue
		}
		values = append(values, types.Text(text[loc[i]:loc[i+1]]))
	}
	return values
}
