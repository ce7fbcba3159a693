package search

import (
	"math"
	"strings"
)

// Score computes a 0..1 relevancy score for a candidate that has
// already matched the query, combining depth, sequentiality, distance,
// first-match position, directory-type, and per-token boundary bonuses.
// level is the candidate's
// depth below the search root; isDirectory distinguishes a directory
// hit from a file hit. A result that only matched in an ancestor
// directory (pure recursion, no direct hit at this level) is penalized
// by its recursion depth.
func (q *Query) Score(level int, isDirectory bool, name string) float64 {
	nameLower := strings.ToLower(name)

	score := 10.0
	if level > 0 {
		score = 9.0 / float64(level)
	}
	maxPoints := 10.0

	positions := q.ResultPositions(nameLower)
	if !anyMatched(positions) {
		// e.g. a directory browsed without include terms: still prefer
		// shallower results.
		return score / maxPoints
	}

	recLevel := q.RecursionLevel()

	sorted := isSortedPositions(positions)
	if sorted {
		score += 120
	}
	maxPoints += 120

	maxPosPoints := float64(q.Include.Count())*20 + 20*float64(recLevel+1)
	curPosPoints := 0.0
	for _, p := range positions {
		curPosPoints += float64(p.bonus)
	}
	if sorted {
		score += curPosPoints
	} else if maxPosPoints > 0 {
		score += (curPosPoints / maxPosPoints) * 10
	}
	maxPoints += maxPosPoints

	if sorted {
		score += distanceBonus(q, positions)
	}
	maxPoints += 30

	if sorted {
		start := positions[0].pos
		if start > 0 {
			score += (1 / float64(start)) * 20
		} else {
			score += 30
		}
	}
	maxPoints += 30

	if isDirectory {
		score += 5
	}
	maxPoints += 5

	result := score / maxPoints
	if recLevel > 0 && noDirectMatch(q.lastPositions) {
		result /= float64(recLevel + 1)
	}
	return result
}

func anyMatched(positions []point) bool {
	for _, p := range positions {
		if p.pos >= 0 {
			return true
		}
	}
	return false
}

func noDirectMatch(positions []int) bool {
	for _, p := range positions {
		if p >= 0 {
			return false
		}
	}
	return true
}

// isSortedPositions reports whether matched positions increase
// monotonically left to right, the "sequential match" bonus condition.
func isSortedPositions(positions []point) bool {
	prev := -1
	for _, p := range positions {
		if p.pos < prev {
			return false
		}
		prev = p.pos
	}
	return true
}

// distanceBonus rewards tokens found close together: little or no gap
// beyond each token's own length earns the full +30; a widening gap
// decays toward 0.
func distanceBonus(q *Query, positions []point) float64 {
	patterns := q.Include.Patterns()
	if len(patterns) == 0 {
		return 30
	}
	minDistance := 0
	for _, p := range patterns {
		minDistance += len(p)
	}
	minDistance += len(patterns) - len(patterns[len(patterns)-1]) - 1

	first, last := positions[0].pos, positions[len(positions)-1].pos
	extra := (last - first) - minDistance
	if extra > 0 {
		return math.Max((1/float64(extra))*20, 0)
	}
	return 30
}
