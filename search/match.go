package search

import (
	"strings"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
)

// point is one include token's matched position plus its boundary
// bonus (0, 10, or 20 per end, scored for whether the token starts and
// ends on a word boundary): set by toPointList once MatchLower has
// located the token.
type point struct {
	pos   int
	bonus int
}

// recursionState carries an ancestor directory's match positions down
// into a descendant so that include tokens split across a path (one
// word in a parent directory, the next in a child) still count as a
// complete match. depthLen accumulates the byte length of every
// directory name between the level that introduced the recursion and
// the level currently being matched, so merged positions can be
// reported relative to the right name.
type recursionState struct {
	positions []point
	depthLen  int
	level     int
}

func isSeparator(b byte) bool {
	switch b {
	case ' ', '.', '-', '_', '(', ')', '[', ']':
		return true
	}
	return false
}

// resetPositions clears state left over from a previous candidate.
func (q *Query) resetPositions() {
	for i := range q.lastPositions {
		q.lastPositions[i] = -1
	}
	q.lastMatches = 0
}

// toPointList scores each include token's last recorded position
// against nameLower's boundaries: +20 for an exact start/end-of-name
// match, +10 when the token sits right after/before a separator,
// mirrored at the token's trailing edge.
func (q *Query) toPointList(nameLower string) []point {
	patterns := q.Include.Patterns()
	out := make([]point, len(patterns))
	for j, pat := range patterns {
		pos := q.lastPositions[j]
		out[j] = point{pos: pos}
		if pos < 0 {
			continue
		}

		bonus := 0
		if pos == 0 {
			bonus += 20
		} else if !isSeparator(pat[0]) && isSeparator(nameLower[pos-1]) {
			bonus += 10
		}

		end := pos + len(pat)
		if end == len(nameLower) {
			bonus += 20
		} else if end < len(nameLower) && !isSeparator(pat[len(pat)-1]) && isSeparator(nameLower[end]) {
			bonus += 10
		}
		out[j].bonus = bonus
	}
	return out
}

// positionsComplete reports whether every include token has a matched
// position, counting positions merged in from an ancestor recursion.
func (q *Query) positionsComplete() bool {
	if q.lastMatches == q.Include.Count() {
		return true
	}
	if q.recursion == nil {
		return false
	}
	for j, p := range q.lastPositions {
		if p < 0 && q.recursion.positions[j].pos < 0 {
			return false
		}
	}
	return true
}

// matchesFileLower validates include/exclude tokens and the extension
// filter against a candidate file name already lower-cased.
func (q *Query) matchesFileLower(nameLower string) bool {
	if q.MatchType == MatchNameExact && len(q.Include.Patterns()) > 0 && nameLower != q.Include.Patterns()[0] {
		return false
	}

	q.resetPositions()
	q.lastMatches, q.lastPositions = q.Include.MatchLower(nameLower)
	if !q.positionsComplete() {
		return false
	}
	if !q.hasExt(nameLower) {
		return false
	}
	if q.Exclude.MatchAny(nameLower) {
		return false
	}
	return true
}

// MatchFile reports whether a file satisfies the query: a TTH query is
// pure set-membership; a textual query checks date/size first, then
// name/extension/exclude.
func (q *Query) MatchFile(name string, size int64, modified time.Time, tth share.TTH) bool {
	if q.ItemType == TypeDirectory {
		return false
	}
	if q.Root != nil {
		return tth == *q.Root
	}
	if !q.matchesDate(modified) || !q.matchesSize(size) {
		return false
	}
	return q.matchesFileLower(strings.ToLower(name))
}

// MatchDirectory reports whether a directory name alone satisfies a
// directory-returning query (no size/date on a directory).
func (q *Query) MatchDirectory(name string) bool {
	if q.ItemType == TypeFile {
		return false
	}
	return q.Include.MatchAll(strings.ToLower(name))
}

// MatchAnyDirectoryLower is used while descending the tree: it reports
// whether any include token appears in this directory's name, without
// requiring every token to be present yet (the remainder may complete
// in a descendant).
func (q *Query) MatchAnyDirectoryLower(nameLower string) bool {
	if q.MatchType != MatchPathPartial && q.ItemType == TypeFile {
		return false
	}
	q.resetPositions()
	q.lastMatches, q.lastPositions = q.Include.MatchLower(nameLower)
	return q.lastMatches > 0
}

// PushRecursion records the current directory's point list as the
// recursion state for its children, called after a partial (non-zero,
// non-complete) match while descending the tree. Returns the previous
// recursion state so the caller can restore it with PopRecursion on the
// way back up.
func (q *Query) PushRecursion(nameLower string) *recursionState {
	prev := q.recursion
	positions := q.toPointList(nameLower)
	next := &recursionState{positions: positions}
	if prev != nil && mergePositions(positions, prev) {
		next.depthLen = prev.depthLen
		next.level = prev.level
	}
	q.recursion = next
	return prev
}

// PopRecursion restores the parent recursion state when the walk
// backtracks out of a directory.
func (q *Query) PopRecursion(prev *recursionState) {
	q.recursion = prev
}

// IncreaseDepth extends the active recursion by one ancestor level
// worth of name length, called while descending past a directory that
// didn't complete the match on its own.
func (q *Query) IncreaseDepth(nameLower string) {
	if q.recursion != nil {
		q.recursion.level++
		q.recursion.depthLen += len(nameLower)
	}
}

// RecursionLevel reports how many ancestor levels the active recursion
// has climbed, used to penalize a result whose match completed only in
// an ancestor directory.
func (q *Query) RecursionLevel() int {
	if q.recursion == nil || q.lastMatches == q.Include.Count() {
		return 0
	}
	return q.recursion.level
}

// mergePositions fills any still-missing position in mergeTo from the
// parent recursion state, offsetting by the parent's accumulated depth.
// Reports whether anything was actually merged in.
func mergePositions(mergeTo []point, parent *recursionState) bool {
	old := parent.positions
	start := -1
	for j := range old {
		if mergeTo[j].pos < 0 && old[j].pos >= 0 {
			start = j
			break
		}
	}
	if start < 0 {
		return false
	}
	for j := start; j < len(old); j++ {
		if mergeTo[j].pos < 0 {
			mergeTo[j] = old[j]
		} else {
			mergeTo[j].pos += parent.depthLen
		}
	}
	return true
}

// ResultPositions returns the point list for a final candidate name,
// merging in ancestor positions when this level alone didn't complete
// the match (used by the relevancy scorer).
func (q *Query) ResultPositions(nameLower string) []point {
	out := q.toPointList(nameLower)
	if q.recursion != nil {
		hasGap := false
		for _, p := range q.lastPositions {
			if p < 0 {
				hasGap = true
				break
			}
		}
		if hasGap {
			mergePositions(out, q.recursion)
		}
	}
	return out
}
