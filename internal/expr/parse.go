// internal/expr/parse.go
package expr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Condition parsing.
 *
 * Parse turns condition text into a Node tree and validates every leaf, so a
 * tree that parses never fails on operator/operand kinds during a scan.
 *
 * Parse workflow (recursive per node):
 *   1. Normalize whitespace and strip redundant enclosing brackets
 *   2. Substitute innermost bracket groups with placeholders until flat
 *   3. Split the flat text on " and " / " or ", keeping the operators
 *   4. More than one fragment: expand placeholders, parse each as a child
 *   5. One fragment: an and/or token, or a leaf "<operand> <op> <operand>"
 *
 * Leaf operators: '=', 'in', '>'. Candidate operator positions inside quoted
 * literals or patterns are ruled out by requiring both sides to classify, so
 * G1F1 in 'x = y' parses while G1F1 = G2F1 = G3F1 does not.
 *
 * and/or have equal precedence and fold left to right; brackets group.
 */

var connective = regexp.MustCompile(` and | or `)

var leafOperator = regexp.MustCompile(`=|>|in`)

// Parse parses condition text into a tree. Returns *types.SyntaxError for
// malformed text; no state outlives a failed call.
func Parse(raw string) (Node, error) {
	if len(raw) > types.MaxExpressionLength {
		return nil, types.ErrExpressionTooLong
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return nil, &types.SyntaxError{Text: raw, Reason: "contains a NUL byte"}
	}
	node, err := parseNode(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := node.(Operator); ok {
		return nil, &types.SyntaxError{Text: node.String(), Reason: "a condition cannot be a bare operator"}
	}
	return node, nil
}

// MustParse is Parse for conditions known to be valid, such as test fixtures.
func MustParse(raw string) Node {
	node, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("expr: MustParse(%q): %v", raw, err))
	}
	return node
}

func parseNode(raw string) (Node, error) {
	text, err := NormalizeBrackets(clean(raw))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, &types.SyntaxError{Text: raw, Reason: "empty condition"}
	}

	flat, saved := substitute(text)
	fragments := splitConnectives(flat)

	if len(fragments) > 1 {
		children := make([]Node, 0, len(fragments))
		for _, fragment := range fragments {
			child, err := parseNode(expand(fragment, saved))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return Group{Children: children, Source: text}, nil
	}

	switch text {
	case "and":
		return Operator{Op: OpAnd}, nil
	case "or":
		return Operator{Op: OpOr}, nil
	}
	return parseLeaf(text)
}

// clean folds newlines and tabs into spaces. NUL bytes never reach it: they
// are reserved for placeholders and Parse rejects them.
func clean(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s)
}

// splitConnectives splits on " and " / " or ", keeping the connectives as
// their own fragments and dropping empty ones.
func splitConnectives(s string) []string {
	var fragments []string
	prev := 0
	for _, loc := range connective.FindAllStringIndex(s, -1) {
		fragments = appendNonEmpty(fragments, s[prev:loc[0]])
		fragments = appendNonEmpty(fragments, s[loc[0]:loc[1]])
		prev = loc[1]
	}
	return appendNonEmpty(fragments, s[prev:])
}

func appendNonEmpty(list []string, s string) []string {
	if s == "" {
		return list
	}
	return append(list, s)
}

// leafSplit is one way of reading a leaf as left, operator, right.
type leafSplit struct {
	left, right Operand
	op          string
}

// parseLeaf reads "<operand> <op> <operand>" and validates operand kinds.
func parseLeaf(text string) (Node, error) {
	var valid []leafSplit
	var firstErr error
	candidates := 0

	for _, loc := range leafOperator.FindAllStringIndex(text, -1) {
		op := text[loc[0]:loc[1]]
		if op == "in" && !standsAlone(text, loc[0], loc[1]) {
			continue
		}
		candidates++

		leftText, rightText := text[:loc[0]], text[loc[1]:]
		if strings.TrimSpace(leftText) == "" || strings.TrimSpace(rightText) == "" {
			continue
		}
		left, err := Classify(leftText)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		right, err := Classify(rightText)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		valid = append(valid, leafSplit{left: left, right: right, op: op})
	}

	switch {
	case len(valid) == 1:
		return buildCondition(text, valid[0])
	case len(valid) > 1:
		return nil, &types.SyntaxError{Text: text, Reason: "is ambiguous, more than one operator applies"}
	case candidates == 1 && firstErr != nil:
		return nil, firstErr
	default:
		return nil, &types.SyntaxError{Text: text, Reason: "is not a valid condition"}
	}
}

// standsAlone reports whether s[start:end] is not part of a longer word.
func standsAlone(s string, start, end int) bool {
	if start > 0 && isLetter(s[start-1]) {
		return false
	}
	if end < len(s) && isLetter(s[end]) {
		return false
	}
	return true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

// buildCondition applies the operator/operand compatibility rules.
func buildCondition(text string, s leafSplit) (Node, error) {
	_, leftPattern := s.left.(Pattern)
	_, rightPattern := s.right.(Pattern)

	cond := Condition{Left: s.left, Right: s.right, Source: text}
	switch s.op {
	case "=":
		if leftPattern {
			return nil, &types.SyntaxError{Text: text, Reason: "the left part cannot be a regular expression"}
		}
		cond.Cmp = CmpEquals
		if rightPattern {
			cond.Cmp = CmpPatternFull
		}
	case "in":
		if rightPattern {
			return nil, &types.SyntaxError{Text: text, Reason: "the right part cannot be a regular expression"}
		}
		cond.Cmp = CmpContains
		if leftPattern {
			cond.Cmp = CmpPatternSearch
		}
	case ">":
		if leftPattern || rightPattern {
			return nil, &types.SyntaxError{Text: text, Reason: "neither the left nor the right part can be a regular expression"}
		}
		cond.Cmp = CmpSubstring
	default:
		return nil, &types.SyntaxError{Text: text, Reason: "is not a valid condition"}
	}
	return cond, nil
}
