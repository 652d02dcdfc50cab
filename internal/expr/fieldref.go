// internal/expr/fieldref.go
package expr

import "github.com/solatis/dupmatch/internal/types"

/*
 * Field reference resolution against one combination.
 *
 * A combination is the ordered list of ComparableRecord, one per group.
 * Resolution never fails: any out-of-range group, field or capture index
 * (authored indices <= 0 included) resolves to the absent value, which then
 * fails every comparison. Captures are trimmed; an optional capture group
 * that did not participate in the match is absent.
 */

// Resolve returns the value ref points at within tuple.
func Resolve(ref FieldRef, tuple []types.ComparableRecord) types.Value {
	if ref.Group < 0 || ref.Group >= len(tuple) {
		return types.Absent()
	}
	fields := tuple[ref.Group].Compare
	if ref.Field < 0 || ref.Field >= len(fields) {
		return types.Absent()
	}
	field := fields[ref.Field]

	if !ref.HasCapture {
		return field.Value
	}
	if ref.Capture < 0 || ref.Capture >= len(field.Captures) {
		return types.Absent()
	}
	return field.Captures[ref.Capture].Trimmed()
}

// operandValue resolves field references and passes literals through.
// Patterns have no text value and resolve to absent.
func operandValue(op Operand, tuple []types.ComparableRecord) types.Value {
	switch v := op.(type) {
	case FieldRef:
		return Resolve(v, tuple)
	case Literal:
		return types.Text(v.Text)
	default:
		return types.Absent()
	}
}
