package search

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
)

// MatchType controls which part of a candidate's path the include
// tokens are matched against.
type MatchType int

const (
	MatchPathPartial MatchType = iota
	MatchNamePartial
	MatchNameExact
)

// ItemType restricts a query to files, directories, or either.
type ItemType int

const (
	TypeAny ItemType = iota
	TypeFile
	TypeDirectory
)

// SizeMode is the NMDC `$` search's size-qualifier slot.
type SizeMode int

const (
	SizeNone SizeMode = iota
	SizeAtLeast
	SizeAtMost
)

// NMDCFileType mirrors the NMDC search protocol's single-digit file
// type, which doubles as an extension-group selector.
type NMDCFileType int

const (
	NMDCAny NMDCFileType = iota
	NMDCAudio
	NMDCCompressed
	NMDCDocument
	NMDCExecutable
	NMDCPicture
	NMDCVideo
	NMDCDirectory
	NMDCTTH
)

// Query is one SearchQuery: either a TTH lookup (Root set) or a
// textual query over include/exclude tokens, extensions, a size/date
// range, an item-type filter, and a match mode.
type Query struct {
	Include StringSearch
	Exclude StringSearch
	Ext     []string
	NoExt   []string

	Root *share.TTH

	Gt int64
	Lt int64

	MinDate time.Time
	MaxDate time.Time

	MatchType  MatchType
	ItemType   ItemType
	AddParents bool
	MaxResults int

	recursion     *recursionState
	lastPositions []int
	lastMatches   int
}

// NewQuery returns a Query with the unbounded size range the zero value
// can't express directly (Lt defaults to "no upper bound").
func NewQuery() *Query {
	return &Query{Lt: math.MaxInt64}
}

// ParseNMDC builds a Query from an NMDC `$`-split search string plus the
// protocol's separate size/type qualifiers.
func ParseNMDC(nmdcString string, sizeMode SizeMode, size int64, fileType NMDCFileType, maxResults int) *Query {
	q := NewQuery()
	q.MaxResults = maxResults

	if fileType == NMDCTTH && strings.HasPrefix(nmdcString, "TTH:") {
		if tth, err := share.ParseTTH(strings.TrimPrefix(nmdcString, "TTH:")); err == nil {
			q.Root = &tth
		}
		return q
	}

	for _, term := range strings.Split(strings.ToLower(nmdcString), "$") {
		if term != "" {
			q.Include.Add(term)
		}
	}

	switch sizeMode {
	case SizeAtLeast:
		q.Gt = size
	case SizeAtMost:
		q.Lt = size
	}

	switch fileType {
	case NMDCAudio:
		q.Ext = extensionsForMask(1 << uint(ExtAudio))
	case NMDCCompressed:
		q.Ext = extensionsForMask(1 << uint(ExtArchive))
	case NMDCDocument:
		q.Ext = extensionsForMask(1 << uint(ExtDocument))
	case NMDCExecutable:
		q.Ext = extensionsForMask(1 << uint(ExtExecutable))
	case NMDCPicture:
		q.Ext = extensionsForMask(1 << uint(ExtPicture))
	case NMDCVideo:
		q.Ext = extensionsForMask(1 << uint(ExtVideo))
	case NMDCDirectory:
		q.ItemType = TypeDirectory
	}

	q.prepare()
	return q
}

// ParseADC builds a Query from an ADC SCH command's named parameters
// (AN/NO/EX/RX/GE/LE/EQ/TY/MT/OT/NT/GR/PP/TR).
func ParseADC(params []string, maxResults int) *Query {
	q := NewQuery()
	q.MaxResults = maxResults

	for _, p := range params {
		if len(p) <= 2 {
			continue
		}
		key, val := p[:2], p[2:]
		switch key {
		case "TR":
			if tth, err := share.ParseTTH(val); err == nil {
				q.Root = &tth
			}
			return q
		case "AN":
			q.Include.Add(val)
		case "NO":
			q.Exclude.Add(val)
		case "EX":
			q.Ext = append(q.Ext, strings.ToLower(val))
		case "RX":
			q.NoExt = append(q.NoExt, strings.ToLower(val))
		case "GR":
			if mask, err := strconv.Atoi(val); err == nil {
				q.Ext = append(q.Ext, extensionsForMask(mask)...)
			}
		case "GE":
			q.Gt, _ = strconv.ParseInt(val, 10, 64)
		case "LE":
			q.Lt, _ = strconv.ParseInt(val, 10, 64)
		case "EQ":
			n, _ := strconv.ParseInt(val, 10, 64)
			q.Gt, q.Lt = n, n
		case "TY":
			if n, err := strconv.Atoi(val); err == nil {
				q.ItemType = ItemType(n)
			}
		case "MT":
			if n, err := strconv.Atoi(val); err == nil {
				q.MatchType = MatchType(n)
			}
		case "OT":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				q.MaxDate = time.Unix(n, 0)
			}
		case "NT":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				q.MinDate = time.Unix(n, 0)
			}
		case "PP":
			q.AddParents = val == "1"
		}
	}

	q.prepare()
	return q
}

// prepare finalizes derived state once every parameter has been read:
// it removes any extension both included and excluded via EX/RX, and
// forces a file-only item type when an extension filter is present
// (a directory never has an extension to match).
func (q *Query) prepare() {
	q.lastPositions = make([]int, q.Include.Count())
	for i := range q.lastPositions {
		q.lastPositions[i] = -1
	}

	if len(q.Ext) > 0 {
		q.ItemType = TypeFile
	}
	if len(q.NoExt) == 0 || len(q.Ext) == 0 {
		return
	}
	exclude := make(map[string]bool, len(q.NoExt))
	for _, e := range q.NoExt {
		exclude[e] = true
	}
	kept := q.Ext[:0]
	for _, e := range q.Ext {
		if !exclude[e] {
			kept = append(kept, e)
		}
	}
	q.Ext = kept
}

// hasExt reports whether nameLower's suffix matches the extension
// filter (always true when no filter is configured).
func (q *Query) hasExt(nameLower string) bool {
	if len(q.Ext) == 0 {
		return true
	}
	for _, ext := range q.Ext {
		if strings.HasSuffix(nameLower, ext) {
			return true
		}
	}
	return false
}

func (q *Query) matchesSize(size int64) bool {
	return size >= q.Gt && size <= q.Lt
}

func (q *Query) matchesDate(modified time.Time) bool {
	if modified.IsZero() {
		return true
	}
	if !q.MinDate.IsZero() && modified.Before(q.MinDate) {
		return false
	}
	if !q.MaxDate.IsZero() && modified.After(q.MaxDate) {
		return false
	}
	return true
}
