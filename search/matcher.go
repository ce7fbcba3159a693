package search

import (
	"sort"

	"github.com/airdcpp-web/dcppcore/share"
)

// Result is one scored hit: exactly one of Dir or File is set.
type Result struct {
	Dir   *share.Directory
	File  *share.File
	Score float64
}

// Match walks every root visible to profile, scoring files and
// directories against q and returning up to q.MaxResults hits ordered
// by descending score (a MaxResults of 0 means unlimited). Directory
// names are matched with a recursion stack so include tokens split
// across a path component boundary (one word in a parent directory,
// the rest in a child) still complete in a descendant.
func Match(tree *share.Tree, profile string, q *Query) []Result {
	var out []Result
	for _, root := range tree.VisibleRoots(profile) {
		walk(root, profile, q, 0, &out)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if q.MaxResults > 0 && len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}
	return out
}

// walk visits d and every visible subdirectory, regardless of whether d
// itself matched: a file five levels down may still be the only hit,
// so the Bloom filter (checked by callers before reaching Match) is
// the only pruning that happens before a full walk, not the matcher
// itself. What DOES carry forward is recursion state: when d's own
// name contributes a partial match, that contribution is pushed so
// d's files and subdirectories can complete it.
func walk(d *share.Directory, profile string, q *Query, level int, out *[]Result) {
	if q.Root != nil {
		walkTTH(d, profile, q, out)
		return
	}

	nameLower := d.Name.Lower
	matchedHere := q.MatchAnyDirectoryLower(nameLower)
	complete := q.positionsComplete()

	if q.MatchDirectory(d.Name.Orig) || (matchedHere && complete) {
		*out = append(*out, Result{Dir: d, Score: q.Score(level, true, d.Name.Orig)})
	}

	var prev *recursionState
	if matchedHere {
		prev = q.PushRecursion(nameLower)
		q.IncreaseDepth(nameLower)
	}

	for _, f := range d.SortedFiles() {
		if q.MatchFile(f.Name.Orig, f.Size, f.Modified, f.TTH) {
			*out = append(*out, Result{File: f, Score: q.Score(level, false, f.Name.Orig)})
		}
	}

	for _, sub := range d.SortedDirs() {
		if sub.VisibleTo(profile) {
			walk(sub, profile, q, level+1, out)
		}
	}

	if prev != nil {
		q.PopRecursion(prev)
	}
}

// walkTTH answers a TTH query without scoring: any file whose hash
// equals the root is a result regardless of name or path.
func walkTTH(d *share.Directory, profile string, q *Query, out *[]Result) {
	for _, f := range d.Files {
		if f.TTH == *q.Root {
			*out = append(*out, Result{File: f, Score: 1})
		}
	}
	for _, sub := range d.Dirs {
		if sub.VisibleTo(profile) {
			walkTTH(sub, profile, q, out)
		}
	}
}
