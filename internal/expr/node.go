// Package expr parses and evaluates duplicate-matching conditions.
//
// A condition such as
//
//	G1F1 = G2F1 and (G1F2R1 in G2F2 or /^\d+$/ in G2F3)
//
// compares fields of the records in one combination. GxFy names field y of
// group x, GxFyRz names capture z of that field's capture pattern, 'text' is a
// literal and /re/ is a regular expression.
package expr

import (
	"fmt"
	"regexp"
)

// Node is one node of a parsed condition tree. It is a closed sum type with
// three variants: Operator, Condition and Group. Code that walks a tree
// switches on the concrete type.
type Node interface {
	String() string
	isNode()
}

// BoolOp is the connective carried by an Operator node.
type BoolOp int

const (
	OpAnd BoolOp = iota + 1
	OpOr
)

func (op BoolOp) String() string {
	switch op {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return fmt.Sprintf("BoolOp(%d)", int(op))
	}
}

// Operator is a bare and/or token inside a Group's child list.
type Operator struct {
	Op BoolOp
}

func (Operator) isNode() {}

func (o Operator) String() string { return o.Op.String() }

// Comparison selects the rule a Condition applies. The parser picks it from
// the operator and the operand kinds.
type Comparison int

const (
	CmpEquals        Comparison = iota + 1 // =, exact equality
	CmpPatternFull                         // = with a pattern on the right
	CmpContains                            // in, whole word or substring
	CmpPatternSearch                       // in with a pattern on the left
	CmpSubstring                           // >, plain substring
)

func (c Comparison) String() string {
	switch c {
	case CmpEquals:
		return "equals"
	case CmpPatternFull:
		return "matches"
	case CmpContains:
		return "contains"
	case CmpPatternSearch:
		return "search"
	case CmpSubstring:
		return "substring"
	default:
		return fmt.Sprintf("Comparison(%d)", int(c))
	}
}

// Condition is a leaf comparison between two operands.
type Condition struct {
	Left   Operand
	Right  Operand
	Cmp    Comparison
	Source string
}

func (Condition) isNode() {}

func (c Condition) String() string { return c.Source }

// Group is an interior node. Children alternate condition nodes and
// Operator tokens, left to right, as written.
type Group struct {
	Children []Node
	Source   string
}

func (Group) isNode() {}

func (g Group) String() string { return g.Source }

// Operand is a comparison operand: FieldRef, Literal or Pattern.
type Operand interface {
	String() string
	isOperand()
}

// FieldRef points at a field, or one capture of a field, in a combination.
// Indices are 0-based; the text form is 1-based. An index below zero never
// resolves.
type FieldRef struct {
	Group      int
	Field      int
	Capture    int
	HasCapture bool
}

func (FieldRef) isOperand() {}

func (r FieldRef) String() string {
	if r.HasCapture {
		return fmt.Sprintf("G%dF%dR%d", r.Group+1, r.Field+1, r.Capture+1)
	}
	return fmt.Sprintf("G%dF%d", r.Group+1, r.Field+1)
}

// Literal is quoted text.
type Literal struct {
	Text string
}

func (Literal) isOperand() {}

func (l Literal) String() string { return "'" + l.Text + "'" }

// Pattern is a compiled /regular expression/.
type Pattern struct {
	Source string
	search *regexp.Regexp
	full   *regexp.Regexp
}

func (Pattern) isOperand() {}

func (p Pattern) String() string { return "/" + p.Source + "/" }

// NewPattern compiles src for both search and whole-string matching.
func NewPattern(src string) (Pattern, error) {
	search, err := regexp.Compile(src)
	if err != nil {
		return Pattern{}, err
	}
	full, err := regexp.Compile(`\A(?:` + src + `)\z`)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Source: src, search: search, full: full}, nil
}

// Search reports whether the pattern matches anywhere in s.
func (p Pattern) Search(s string) bool {
	return p.search != nil && p.search.MatchString(s)
}

// FullMatch reports whether the pattern matches all of s.
func (p Pattern) FullMatch(s string) bool {
	return p.full != nil && p.full.MatchString(s)
}

// Walk calls fn for n and every node below it, depth first.
func Walk(n Node, fn func(Node)) {
	fn(n)
	if g, ok := n.(Group); ok {
		for _, child := range g.Children {
			Walk(child, fn)
		}
	}
}

// FieldRefs returns every field reference used by the tree, in source order.
func FieldRefs(n Node) []FieldRef {
	var refs []FieldRef
	Walk(n, func(node Node) {
		c, ok := node.(Condition)
		if !ok {
			return
		}
		for _, op := range []Operand{c.Left, c.Right} {
			if ref, ok := op.(FieldRef); ok {
				refs = append(refs, ref)
			}
		}
	})
	return refs
}
