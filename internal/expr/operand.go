package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/solatis/dupmatch/internal/types"
)

var fieldRefPattern = regexp.MustCompile(`^G([0-9]+)F([0-9]+)(?:R([0-9]+))?$`)

// Classify turns one operand token into a FieldRef, Literal or Pattern.
// Whitespace around the token is ignored. Returns *types.SyntaxError when
// the token is none of these or its pattern does not compile.
func Classify(token string) (Operand, error) {
	token = strings.TrimSpace(token)

	if m := fieldRefPattern.FindStringSubmatch(token); m != nil {
		return newFieldRef(token, m[1], m[2], m[3])
	}

	if len(token) >= 2 && token[0] == '\'' && token[len(token)-1] == '\'' {
		return Literal{Text: token[1 : len(token)-1]}, nil
	}

	if len(token) >= 2 && token[0] == '/' && token[len(token)-1] == '/' {
		src := token[1 : len(token)-1]
		p, err := NewPattern(src)
		if err != nil {
			return nil, &types.SyntaxError{Text: src, Reason: "is not a valid regular expression"}
		}
		return p, nil
	}

	return nil, &types.SyntaxError{Text: token, Reason: "is not a valid value, regular expression or field reference"}
}

// ParseFieldRef parses a token that must be a field reference. Used for
// replacement values, where anything else is plain text.
func ParseFieldRef(token string) (FieldRef, bool) {
	op, err := Classify(token)
	if err != nil {
		return FieldRef{}, false
	}
	ref, ok := op.(FieldRef)
	return ref, ok
}

// newFieldRef converts 1-based authored indices to 0-based ones. An authored
// zero becomes -1 and never resolves.
func newFieldRef(token, group, field, capture string) (FieldRef, error) {
	var ref FieldRef
	var err error
	if ref.Group, err = oneBased(group); err != nil {
		return FieldRef{}, &types.SyntaxError{Text: token, Reason: fmt.Sprintf("group index: %v", err)}
	}
	if ref.Field, err = oneBased(field); err != nil {
		return FieldRef{}, &types.SyntaxError{Text: token, Reason: fmt.Sprintf("field index: %v", err)}
	}
	if capture != "" {
		if ref.Capture, err = oneBased(capture); err != nil {
			return FieldRef{}, &types.SyntaxError{Text: token, Reason: fmt.Sprintf("capture index: %v", err)}
		}
		ref.HasCapture = true
	}
	return ref, nil
}

func oneBased(digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}
