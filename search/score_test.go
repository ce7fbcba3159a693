package search

import (
	"strings"
	"testing"
)

func TestScorePrefersShallowerLevel(t *testing.T) {
	q := NewQuery()
	shallow := q.Score(0, false, "x")
	deep := q.Score(5, false, "x")
	if shallow <= deep {
		t.Fatalf("expected a shallower candidate to score higher, shallow=%v deep=%v", shallow, deep)
	}
}

func TestScorePrefersSequentialAndBoundaryMatches(t *testing.T) {
	q := NewQuery()
	q.Include.Add("foo")
	q.Include.Add("bar")

	q.MatchAnyDirectoryLower(strings.ToLower("foo bar"))
	boundary := q.Score(1, false, "foo bar")
	q.recursion = nil

	q.MatchAnyDirectoryLower(strings.ToLower("xfooxbarx"))
	messy := q.Score(1, false, "xfooxbarx")

	if boundary <= messy {
		t.Fatalf("expected a boundary-aligned sequential match to score higher than an embedded one, boundary=%v messy=%v", boundary, messy)
	}
}

func TestScoreDirectoryBonus(t *testing.T) {
	q := NewQuery()
	q.Include.Add("foo")

	q.MatchAnyDirectoryLower("foo")
	dirScore := q.Score(1, true, "foo")
	q.MatchAnyDirectoryLower("foo")
	fileScore := q.Score(1, false, "foo")
	if dirScore <= fileScore {
		t.Fatalf("expected the directory-type bonus to push a directory hit above an equivalent file hit, dir=%v file=%v", dirScore, fileScore)
	}
}

func TestScoreWithoutIncludeTermsStillPrefersShallow(t *testing.T) {
	q := NewQuery()
	s0 := q.Score(0, false, "anything")
	s3 := q.Score(3, false, "anything")
	if s0 <= s3 {
		t.Fatalf("expected depth-only scoring (no include terms) to still prefer shallower, s0=%v s3=%v", s0, s3)
	}
}
