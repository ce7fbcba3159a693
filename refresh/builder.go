package refresh

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
)

// HashStore is the TTH cache consulted during a walk: a cache hit on
// (pathLower, mtime, size) reuses the stored tree hash; a miss queues the
// file for out-of-line hashing.
type HashStore interface {
	Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool)
	Enqueue(realPath string, size int64)
}

// Validator inspects a candidate filesystem entry and returns a non-nil
// error to reject it (skiplist match, user exclude, pending-hash TTH
// queue, or an external veto hook). Chain combines several into one.
type Validator func(realPath string, info os.FileInfo) error

// Chain runs each validator in order, stopping at the first rejection.
func Chain(validators ...Validator) Validator {
	return func(realPath string, info os.FileInfo) error {
		for _, v := range validators {
			if err := v(realPath, info); err != nil {
				return err
			}
		}
		return nil
	}
}

// BuildResult carries the delta counters the refresh worker reports back
// to callers once a subtree finishes walking.
type BuildResult struct {
	Dir *share.Directory

	AddedSize int64
	HashSize  int64

	NewFiles      int
	ExistingFiles int
	SkippedFiles  int
	NewDirs       int
	ExistingDirs  int
	SkippedDirs   int
}

// ShareBuilder walks one real filesystem path and produces a fresh
// Directory subtree, consulting a validator chain and a hash store along
// the way. Grounded on the corpus's directory-enumeration style: open
// the directory, read its names, recurse depth-first, rather than
// filepath.WalkDir's callback inversion, so the per-entry validator and
// hash-store consult can short-circuit a whole subtree without a
// sentinel error.
type ShareBuilder struct {
	Validator Validator
	Hashes    HashStore
}

// Build walks realPath, diffing the walk against the existing subtree
// (nil if this is the first refresh of this path) to populate the
// existing/new/skipped counters.
func (b *ShareBuilder) Build(realPath, virtualName string, existing *share.Directory) (*BuildResult, error) {
	res := &BuildResult{}
	dir, err := b.walk(realPath, virtualName, nil, existing, res)
	if err != nil {
		return nil, err
	}
	res.Dir = dir
	return res, nil
}

func (b *ShareBuilder) walk(realPath, name string, parent *share.Directory, existing *share.Directory, res *BuildResult) (*share.Directory, error) {
	info, err := os.Stat(realPath)
	if err != nil {
		return nil, err
	}

	dir := share.NewDirectory(name, parent)
	dir.Modified = info.ModTime()

	f, err := os.Open(realPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for {
		names, err := f.Readdirnames(1024)
		for _, entryName := range names {
			entryPath := filepath.Join(realPath, entryName)
			entryInfo, statErr := os.Lstat(entryPath)
			if statErr != nil {
				continue // vanished between Readdirnames and Lstat
			}

			if b.Validator != nil {
				if verr := b.Validator(entryPath, entryInfo); verr != nil {
					if entryInfo.IsDir() {
						res.SkippedDirs++
					} else {
						res.SkippedFiles++
					}
					continue
				}
			}

			if entryInfo.IsDir() {
				var existingChild *share.Directory
				if existing != nil {
					existingChild = existing.Dirs[lowerName(entryName)]
				}
				child, werr := b.walk(entryPath, entryName, dir, existingChild, res)
				if werr != nil {
					return nil, werr
				}
				dir.Dirs[child.Name.Lower] = child
				if existingChild != nil {
					res.ExistingDirs++
				} else {
					res.NewDirs++
				}
				continue
			}

			if !entryInfo.Mode().IsRegular() {
				continue
			}

			file := b.buildFile(entryPath, entryName, entryInfo, dir, existing, res)
			dir.Files[file.Name.Lower] = file
		}
		if err != nil {
			break
		}
	}
	return dir, nil
}

func (b *ShareBuilder) buildFile(realPath, name string, info fs.FileInfo, parent *share.Directory, existing *share.Directory, res *BuildResult) *share.File {
	file := &share.File{
		Name:     share.NewDualString(name),
		Size:     info.Size(),
		Modified: info.ModTime(),
		Parent:   parent,
	}

	pathLower := lowerName(realPath)
	if tth, ok := b.Hashes.Lookup(pathLower, info.ModTime(), info.Size()); ok {
		file.TTH = tth
	} else {
		b.Hashes.Enqueue(realPath, info.Size())
		res.HashSize += info.Size()
	}

	res.AddedSize += info.Size()
	if existing != nil {
		if _, ok := existing.Files[file.Name.Lower]; ok {
			res.ExistingFiles++
			return file
		}
	}
	res.NewFiles++
	return file
}

func lowerName(s string) string { return strings.ToLower(s) }
