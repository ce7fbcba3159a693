package search

import "strings"

// StringSearch scans a name for a set of lower-cased patterns
// simultaneously, returning the position of each pattern's first match
// (or -1 if absent) so a caller can score sequentiality, distance, and
// boundary bonuses afterward. Matching against a single candidate name
// is O(patterns × len(name)); the pattern count in a real query is
// small enough that a more elaborate multi-pattern automaton (Aho-
// Corasick) buys nothing here.
type StringSearch struct {
	patterns []string
}

// Add appends a lower-cased pattern. Empty terms are ignored.
func (s *StringSearch) Add(term string) {
	term = strings.ToLower(term)
	if term != "" {
		s.patterns = append(s.patterns, term)
	}
}

// Count is the number of registered patterns.
func (s *StringSearch) Count() int { return len(s.patterns) }

// Patterns returns the registered patterns in insertion order.
func (s *StringSearch) Patterns() []string { return s.patterns }

// MatchLower finds every pattern's first occurrence in a lower-cased
// name, returning how many patterns matched and their positions (-1
// where absent).
func (s *StringSearch) MatchLower(nameLower string) (matched int, positions []int) {
	positions = make([]int, len(s.patterns))
	for i, p := range s.patterns {
		pos := strings.Index(nameLower, p)
		positions[i] = pos
		if pos >= 0 {
			matched++
		}
	}
	return matched, positions
}

// MatchAll reports whether every pattern occurs somewhere in nameLower.
func (s *StringSearch) MatchAll(nameLower string) bool {
	for _, p := range s.patterns {
		if !strings.Contains(nameLower, p) {
			return false
		}
	}
	return true
}

// MatchAny reports whether any pattern occurs in nameLower, used for
// exclude-token checks.
func (s *StringSearch) MatchAny(nameLower string) bool {
	for _, p := range s.patterns {
		if strings.Contains(nameLower, p) {
			return true
		}
	}
	return false
}
