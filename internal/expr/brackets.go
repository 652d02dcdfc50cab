// internal/expr/brackets.go
package expr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Parenthesis handling for condition text.
 *
 * NormalizeBrackets strips only redundant enclosing layers. The number of
 * layers is the minimum nesting depth seen between the leading run of '('
 * and the trailing run of ')':
 *
 *   (a and b)     -> a and b
 *   ((a and b))   -> a and b
 *   (a) and (b)   -> unchanged (depth drops to 0 between the groups)
 *   ((a) and b)   -> (a) and b
 *
 * substitute flattens nesting so the top level can be split on and/or. It is
 * a pure function: the replacement list is returned, never kept in shared
 * state, and each placeholder indexes into that list.
 */

var innermostGroup = regexp.MustCompile(`\([^()]*\)`)

var placeholderToken = regexp.MustCompile("\x00([0-9]+)\x00")

// NormalizeBrackets trims whitespace and strips redundant enclosing
// parentheses until none remain. Idempotent. Returns *types.SyntaxError for
// unbalanced input.
func NormalizeBrackets(s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := checkBalance(s); err != nil {
		return "", err
	}
	for {
		layers := redundantLayers(s)
		if layers == 0 {
			return s, nil
		}
		s = strings.TrimSpace(s[layers : len(s)-layers])
	}
}

// checkBalance rejects a closer with no opener and openers left unclosed.
func checkBalance(s string) error {
	depth := 0
	for _, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return &types.SyntaxError{Text: s, Reason: "too many closing brackets"}
			}
			depth--
		}
	}
	if depth != 0 {
		return &types.SyntaxError{Text: s, Reason: "not all brackets have been closed"}
	}
	return nil
}

// redundantLayers counts enclosing layers that wrap the whole of a balanced
// string. The depth before each character between the leading and trailing
// runs never exceeds either run, so the minimum is always strippable.
func redundantLayers(s string) int {
	n := len(s)
	lead := 0
	for lead < n && s[lead] == '(' {
		lead++
	}
	trail := 0
	for trail < n-lead && s[n-1-trail] == ')' {
		trail++
	}
	if lead == 0 || trail == 0 || lead+trail >= n {
		return 0
	}

	depth := lead
	minDepth := lead
	for i := lead; i < n-trail; i++ {
		if depth < minDepth {
			minDepth = depth
		}
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return min(minDepth, lead, trail)
}

// substitute replaces innermost parenthesized groups with placeholders until
// no parenthesis remains. Returns the flattened text and the saved groups;
// placeholder i stands for saved[i], which may itself hold placeholders.
func substitute(s string) (string, []string) {
	var saved []string
	for innermostGroup.MatchString(s) {
		s = innermostGroup.ReplaceAllStringFunc(s, func(group string) string {
			saved = append(saved, group)
			return placeholder(len(saved) - 1)
		})
	}
	return s, saved
}

func placeholder(i int) string {
	return "\x00" + strconv.Itoa(i) + "\x00"
}

// expand restores placeholders, recursively, to their original text.
func expand(s string, saved []string) string {
	for placeholderToken.MatchString(s) {
		s = placeholderToken.ReplaceAllStringFunc(s, func(token string) string {
			i, err := strconv.Atoi(strings.Trim(token, "\x00"))
			if err != nil || i < 0 || i >= len(saved) {
				return ""
			}
			return saved[i]
		})
	}
	return s
}
