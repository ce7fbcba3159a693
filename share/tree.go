package share

import (
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned when a virtual path or TTH has no match in the
// tree.
var ErrNotFound = errors.New("share: not found")

// Tree is the whole in-memory share forest: the three-way index
// (realPath, lower-cased name multimap, TTH), the root set, and the
// Bloom filter all live behind one RWMutex, matching Perkeep corpus.go's
// single-lock-over-the-whole-corpus shape rather than one lock per index
// (the three indices are always mutated together, so splitting the lock
// would only buy false independence).
type Tree struct {
	mu sync.RWMutex

	roots    map[string]*ShareRoot    // keyed by real path
	topDirs  map[string]*Directory    // keyed by real path, parallel to roots
	byLower  map[string][]*Directory  // lower-cased directory name -> owning directories
	byTTH    map[TTH][]*File
	bloom    *Bloom
	profiles map[string]*ShareProfile
}

// NewTree constructs an empty share tree with a Bloom filter sized for an
// initial capacity; refresh operations grow it as needed.
func NewTree() *Tree {
	return &Tree{
		roots:    make(map[string]*ShareRoot),
		topDirs:  make(map[string]*Directory),
		byLower:  make(map[string][]*Directory),
		byTTH:    make(map[TTH][]*File),
		bloom:    NewBloom(1 << 16),
		profiles: make(map[string]*ShareProfile),
	}
}

// AddProfile registers a named view, idempotently.
func (t *Tree) AddProfile(token, name string) *ShareProfile {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.profiles[token]; ok {
		return p
	}
	p := &ShareProfile{Token: token, Name: name}
	t.profiles[token] = p
	return p
}

// AddRoot registers a new mount point with an empty directory; refresh
// is responsible for populating it.
func (t *Tree) AddRoot(root *ShareRoot) *Directory {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir := NewDirectory(root.VirtualName.Orig, nil)
	dir.Root = root
	t.roots[root.RealPath] = root
	t.topDirs[root.RealPath] = dir
	t.indexLocked(dir)
	return dir
}

// Roots returns a snapshot of the mounted roots.
func (t *Tree) Roots() []*ShareRoot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ShareRoot, 0, len(t.roots))
	for _, r := range t.roots {
		out = append(out, r)
	}
	return out
}

// TopDirectory returns the top-level Directory for a mounted real path.
func (t *Tree) TopDirectory(realPath string) (*Directory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.topDirs[realPath]
	return d, ok
}

// Splice replaces the subtree at realPath with a freshly built one,
// updating the TTH index and the lower-name multimap in one pass (spec's
// refresh-splice step). The Bloom filter is extended, never rebuilt,
// except by Rebuild (full refresh).
func (t *Tree) Splice(realPath string, fresh *Directory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.topDirs[realPath]; ok {
		t.unindexLocked(old)
	}
	fresh.Root = t.roots[realPath]
	t.topDirs[realPath] = fresh
	t.indexLocked(fresh)
	t.invalidateListsLocked()
}

// Rebuild replaces the whole forest and resets the Bloom filter from
// scratch (REFRESH_ALL).
func (t *Tree) Rebuild(roots map[string]*ShareRoot, dirs map[string]*Directory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = roots
	t.topDirs = dirs
	t.byLower = make(map[string][]*Directory)
	t.byTTH = make(map[TTH][]*File)
	t.bloom = NewBloom(bloomSizeFor(countEntries(dirs)))
	for _, d := range dirs {
		t.indexLocked(d)
	}
	t.invalidateListsLocked()
}

func (t *Tree) invalidateListsLocked() {
	for _, p := range t.profiles {
		p.InvalidateList()
	}
}

func countEntries(dirs map[string]*Directory) int {
	n := 0
	var walk func(*Directory)
	walk = func(d *Directory) {
		n++
		for _, f := range d.Files {
			_ = f
			n++
		}
		for _, sub := range d.Dirs {
			walk(sub)
		}
	}
	for _, d := range dirs {
		walk(d)
	}
	return n
}

// indexLocked recursively registers a subtree's directories and files
// into the lower-name multimap, the TTH index, and the Bloom filter.
// Caller must hold mu.
func (t *Tree) indexLocked(d *Directory) {
	t.byLower[d.Name.Lower] = append(t.byLower[d.Name.Lower], d)
	t.bloom.Add(d.Name.Lower)
	for _, f := range d.Files {
		t.byTTH[f.TTH] = append(t.byTTH[f.TTH], f)
		t.bloom.Add(f.Name.Lower)
	}
	for _, sub := range d.Dirs {
		t.indexLocked(sub)
	}
}

// unindexLocked removes a subtree from the lower-name multimap and TTH
// index (not the Bloom filter: it only ever grows between full resets,
// per invariant 3's "superset" guarantee). Caller must hold mu.
func (t *Tree) unindexLocked(d *Directory) {
	t.removeFromLower(d)
	for _, f := range d.Files {
		t.removeFromTTH(f)
	}
	for _, sub := range d.Dirs {
		t.unindexLocked(sub)
	}
}

func (t *Tree) removeFromLower(d *Directory) {
	list := t.byLower[d.Name.Lower]
	for i, cand := range list {
		if cand == d {
			t.byLower[d.Name.Lower] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (t *Tree) removeFromTTH(f *File) {
	list := t.byTTH[f.TTH]
	for i, cand := range list {
		if cand == f {
			t.byTTH[f.TTH] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// FilesByTTH answers upload/search lookups by content hash (invariant 2).
func (t *Tree) FilesByTTH(h TTH) []*File {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*File, len(t.byTTH[h]))
	copy(out, t.byTTH[h])
	return out
}

// DirectoriesByLowerName resolves the ADC virtual-path multimap.
func (t *Tree) DirectoriesByLowerName(lower string) []*Directory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Directory, len(t.byLower[lower]))
	copy(out, t.byLower[lower])
	return out
}

// Resolve walks a "/root/sub/dir/" (or "/root/sub/file.ext") ADC virtual
// path down from its matching root(s), restricted to directories visible
// under profile. Returns the Directory (for a path ending in "/") or the
// File.
func (t *Tree) Resolve(virtualPath, profile string) (dir *Directory, file *File, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parts := strings.Split(strings.Trim(virtualPath, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, nil, ErrNotFound
	}
	trailingSlash := strings.HasSuffix(virtualPath, "/")

	var cur *Directory
	for _, d := range t.topDirs {
		if d.Root != nil && strings.EqualFold(d.Root.VirtualName.Orig, parts[0]) && d.Root.VisibleTo(profile) {
			cur = d
			break
		}
	}
	if cur == nil {
		return nil, nil, ErrNotFound
	}

	rest := parts[1:]
	for i, name := range rest {
		last := i == len(rest)-1
		lower := strings.ToLower(name)
		if last && !trailingSlash {
			if f, ok := cur.Files[lower]; ok {
				return nil, f, nil
			}
			return nil, nil, ErrNotFound
		}
		sub, ok := cur.Dirs[lower]
		if !ok || !sub.VisibleTo(profile) {
			return nil, nil, ErrNotFound
		}
		cur = sub
	}
	return cur, nil, nil
}

// VisibleRoots returns the top-level directories visible to profile, a
// snapshot safe to walk without holding the tree lock: refresh always
// swaps a whole subtree via Splice/Rebuild rather than mutating one in
// place, so a snapshot taken here never observes a half-built tree.
func (t *Tree) VisibleRoots(profile string) []*Directory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Directory, 0, len(t.topDirs))
	for _, d := range t.topDirs {
		if d.Root != nil && d.Root.VisibleTo(profile) {
			out = append(out, d)
		}
	}
	return out
}

// BloomFilter returns the tree's shared Bloom filter for read-only queries.
func (t *Tree) BloomFilter() *Bloom {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bloom
}
