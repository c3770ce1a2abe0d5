// ABOUTME: @Name mention resolution against a room's roster of display names
// ABOUTME: Whole-name, case-insensitive matching; longer names win over prefixes

package mention

import (
	"sort"
	"strings"
	"unicode"
)

// Resolve finds @Name mentions in free text and resolves them against the
// roster. Matching is case-insensitive and whole-name: the roster name must
// appear in full right after the @, followed by a non-name character or the
// end of the text, so "@Jan" never resolves to "Janet". When two roster names
// share a prefix the longer one wins ("@Jan Smith" resolves to "Jan Smith",
// not "Jan").
//
// Returns the matched names in roster casing, in order of first appearance,
// without duplicates.
func Resolve(text string, roster []string) []string {
	if text == "" || len(roster) == 0 {
		return nil
	}

	// Longest-first so "Jan Smith" is tried before "Jan".
	names := make([]string, 0, len(roster))
	for _, name := range roster {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	var (
		found []string
		seen  = make(map[string]struct{})
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		rest := text[i+1:]
		for _, name := range names {
			if !matchesWholeName(rest, name) {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				found = append(found, name)
			}
			i += len(name) // skip past the match; loop increment eats the @
			break
		}
	}
	return found
}

// First returns the first mention resolved in the text, or "".
func First(text string, roster []string) string {
	names := Resolve(text, roster)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// matchesWholeName reports whether text starts with name (case-insensitively)
// and the match ends at a name boundary.
func matchesWholeName(text, name string) bool {
	if len(text) < len(name) {
		return false
	}
	if !strings.EqualFold(text[:len(name)], name) {
		return false
	}
	if len(text) == len(name) {
		return true
	}
	next := []rune(text[len(name):])[0]
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}
