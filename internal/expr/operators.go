// internal/expr/operators.go
package expr

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Comparison rules.
 *
 * Every rule returns false when a value it reads is absent.
 *
 *   - equals:        exact, case-sensitive string equality
 *   - contains:      left has no whitespace -> whole-word, case-insensitive
 *                    match of left within right; otherwise case-sensitive
 *                    substring containment
 *   - substring:     case-sensitive substring, no word boundaries (>)
 *   - pattern full:  pattern matches the whole left value (= /re/)
 *   - pattern search: pattern found anywhere in the right value (/re/ in x)
 *
 * Whole-word matching treats Unicode letters, numbers and '_' as word
 * characters: a match counts when each end sits on a word/non-word
 * transition, as \b does in Unicode-aware engines. Go's \b is ASCII-only,
 * so the boundaries are checked on the runes around each candidate match.
 * Word patterns are cached since the same field values recur across the
 * cartesian product.
 */

// Equals applies the equality rule.
func Equals(left, right types.Value) bool {
	l, okL := left.Get()
	r, okR := right.Get()
	if !okL || !okR {
		return false
	}
	return l == r
}

// Contains applies the containment rule.
func Contains(left, right types.Value) bool {
	l, okL := left.Get()
	r, okR := right.Get()
	if !okL || !okR {
		return false
	}
	if strings.IndexFunc(l, unicode.IsSpace) >= 0 {
		return strings.Contains(r, l)
	}
	return wordIn(l, r)
}

// Substring applies the plain substring rule.
func Substring(left, right types.Value) bool {
	l, okL := left.Get()
	r, okR := right.Get()
	if !okL || !okR {
		return false
	}
	return strings.Contains(r, l)
}

// PatternFull applies the whole-string pattern rule to the left value.
func PatternFull(left types.Value, p Pattern) bool {
	l, ok := left.Get()
	if !ok {
		return false
	}
	return p.FullMatch(l)
}

// PatternSearch applies the pattern search rule to the right value.
func PatternSearch(p Pattern, right types.Value) bool {
	r, ok := right.Get()
	if !ok {
		return false
	}
	return p.Search(r)
}

// maxCachedWords caps the word pattern cache; beyond it patterns are
// compiled per call.
const maxCachedWords = 4096

var (
	wordPatterns   sync.Map // string -> *regexp.Regexp
	wordCacheCount atomic.Int64
)

// wordIn reports whether word occurs in s as a whole word, ignoring case.
func wordIn(word, s string) bool {
	re := wordPattern(word)
	for start := 0; start <= len(s); {
		loc := re.FindStringIndex(s[start:])
		if loc == nil {
			return false
		}
		i, j := start+loc[0], start+loc[1]
		if atBoundary(s, i) && atBoundary(s, j) {
			return true
		}
		if i == len(s) {
			return false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		start = i + size
	}
	return false
}

func wordPattern(word string) *regexp.Regexp {
	if cached, ok := wordPatterns.Load(word); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(word))
	if wordCacheCount.Load() < maxCachedWords {
		if _, loaded := wordPatterns.LoadOrStore(word, re); !loaded {
			wordCacheCount.Add(1)
		}
	}
	return re
}

// atBoundary reports whether byte offset i of s lies between a word rune
// and a non-word rune (string ends count as non-word).
func atBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
