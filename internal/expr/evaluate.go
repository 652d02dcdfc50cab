// internal/expr/evaluate.go
package expr

import (
	"fmt"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Condition evaluation.
 *
 * Evaluates a parsed tree against one combination of records.
 *
 * Evaluation flow:
 *   1. Condition: resolve field references -> apply the comparison rule
 *   2. Group: fold children left to right; the first child seeds the result,
 *      each and/or token is remembered until the next condition child
 *      combines with the running result
 *
 * Folding is eager: every child is evaluated, there is no short circuit.
 * A condition child with no pending operator is an EvaluationError, as is a
 * leading operator. Two operators in a row keep the later one and a trailing
 * operator is ignored; the parser never produces either, and the folding
 * stays lenient about them rather than rejecting trees it would accept.
 */

// Evaluate reports whether the combination satisfies the tree.
// Returns *types.EvaluationError for malformed and/or sequencing.
func Evaluate(n Node, tuple []types.ComparableRecord) (bool, error) {
	switch node := n.(type) {
	case Condition:
		return evaluateCondition(node, tuple), nil
	case Group:
		return evaluateGroup(node, tuple)
	case Operator:
		return false, &types.EvaluationError{Node: node.String(), Reason: "operator used as a condition"}
	default:
		return false, &types.EvaluationError{Node: fmt.Sprintf("%v", n), Reason: "unknown node"}
	}
}

// evaluateCondition dispatches to the comparison rule chosen at parse time.
func evaluateCondition(c Condition, tuple []types.ComparableRecord) bool {
	switch c.Cmp {
	case CmpEquals:
		return Equals(operandValue(c.Left, tuple), operandValue(c.Right, tuple))
	case CmpContains:
		return Contains(operandValue(c.Left, tuple), operandValue(c.Right, tuple))
	case CmpSubstring:
		return Substring(operandValue(c.Left, tuple), operandValue(c.Right, tuple))
	case CmpPatternFull:
		p, ok := c.Right.(Pattern)
		return ok && PatternFull(operandValue(c.Left, tuple), p)
	case CmpPatternSearch:
		p, ok := c.Left.(Pattern)
		return ok && PatternSearch(p, operandValue(c.Right, tuple))
	default:
		return false
	}
}

// evaluateGroup folds the child list left to right.
func evaluateGroup(g Group, tuple []types.ComparableRecord) (bool, error) {
	if len(g.Children) == 0 {
		return false, &types.EvaluationError{Node: g.Source, Reason: "empty condition group"}
	}
	if _, ok := g.Children[0].(Operator); ok {
		return false, &types.EvaluationError{Node: g.Source, Reason: "the use of 'and'/'or' operators is incorrect"}
	}

	result, err := Evaluate(g.Children[0], tuple)
	if err != nil {
		return false, err
	}

	var pending BoolOp
	for _, child := range g.Children[1:] {
		if op, ok := child.(Operator); ok {
			pending = op.Op
			continue
		}

		value, err := Evaluate(child, tuple)
		if err != nil {
			return false, err
		}
		switch pending {
		case OpAnd:
			result = result && value
		case OpOr:
			result = result || value
		default:
			return false, &types.EvaluationError{Node: g.Source, Reason: "the use of 'and'/'or' operators is incorrect"}
		}
		pending = 0
	}

	return result, nil
}
