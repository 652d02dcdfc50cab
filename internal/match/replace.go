package match

import (
	"github.com/solatis/dupmatch/internal/expr"
	"github.com/solatis/dupmatch/internal/types"
)

// resolveReplacements copies a matched combination into a MatchTuple and
// sets each member's action, tag and replacement from its group.
//
// A literal replacement is copied as is. A field reference is resolved
// against the matched combination and applied only when it is present.
func resolveReplacements(tuple []types.ComparableRecord, p *plan) types.MatchTuple {
	members := make([]types.ComparableRecord, len(tuple))
	for i, rec := range tuple {
		spec := p.groups[i].Spec
		rec.Action = spec.Action
		rec.Tag = spec.Tag

		if ref := p.replacements[i]; ref != nil {
			if v, ok := expr.Resolve(*ref, tuple).Get(); ok {
				rec.Replacement = v
			}
		} else {
			rec.Replacement = spec.Replacement
		}
		members[i] = rec
	}
	return types.MatchTuple{Members: members}
}
