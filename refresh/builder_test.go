package refresh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airdcpp-web/dcppcore/share"
)

type fakeHashStore struct {
	cached map[string]share.TTH
	queued []string
}

func (f *fakeHashStore) Lookup(pathLower string, mtime time.Time, size int64) (share.TTH, bool) {
	tth, ok := f.cached[pathLower]
	return tth, ok
}

func (f *fakeHashStore) Enqueue(realPath string, size int64) {
	f.queued = append(f.queued, realPath)
}

func writeSampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Albums"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "Albums", "song.flac"), []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestBuildWalksDirectoryTree(t *testing.T) {
	root := writeSampleTree(t)
	hashes := &fakeHashStore{cached: map[string]share.TTH{}}
	b := &ShareBuilder{Hashes: hashes}

	result, err := b.Build(root, "Music", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if result.NewDirs != 1 || result.NewFiles != 2 {
		t.Fatalf("expected 1 new dir and 2 new files, got dirs=%d files=%d", result.NewDirs, result.NewFiles)
	}
	if _, ok := result.Dir.Files["readme.txt"]; !ok {
		t.Fatal("expected readme.txt at the top of the built subtree")
	}
	if _, ok := result.Dir.Dirs["albums"]; !ok {
		t.Fatal("expected an Albums subdirectory in the built subtree")
	}
	if len(hashes.queued) != 2 {
		t.Fatalf("expected both files queued for hashing on a cold cache, got %v", hashes.queued)
	}
	if result.HashSize == 0 {
		t.Fatal("expected HashSize to count the queued files' bytes")
	}
}

func TestBuildReusesCachedTTH(t *testing.T) {
	root := writeSampleTree(t)
	want := share.Hash([]byte("cached"))
	hashes := &fakeHashStore{cached: map[string]share.TTH{
		lowerName(filepath.Join(root, "readme.txt")): want,
	}}

	b := &ShareBuilder{Hashes: hashes}
	result, err := b.Build(root, "Music", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Dir.Files["readme.txt"].TTH != want {
		t.Fatal("expected the cached TTH to be reused instead of queuing for hashing")
	}
	for _, q := range hashes.queued {
		if q == filepath.Join(root, "readme.txt") {
			t.Fatal("expected readme.txt not to be queued for hashing on a cache hit")
		}
	}
}

func TestBuildValidatorRejectsEntries(t *testing.T) {
	root := writeSampleTree(t)
	hashes := &fakeHashStore{cached: map[string]share.TTH{}}
	rejectTxt := func(realPath string, info os.FileInfo) error {
		if filepath.Ext(realPath) == ".txt" {
			return os.ErrPermission
		}
		return nil
	}
	b := &ShareBuilder{Hashes: hashes, Validator: rejectTxt}

	result, err := b.Build(root, "Music", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.SkippedFiles != 1 {
		t.Fatalf("expected readme.txt to be skipped by the validator, got %d skipped", result.SkippedFiles)
	}
	if _, ok := result.Dir.Files["readme.txt"]; ok {
		t.Fatal("expected a rejected file to be absent from the built subtree")
	}
}

func TestBuildDiffsAgainstExistingSubtree(t *testing.T) {
	root := writeSampleTree(t)
	hashes := &fakeHashStore{cached: map[string]share.TTH{}}
	b := &ShareBuilder{Hashes: hashes}

	first, err := b.Build(root, "Music", nil)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}

	second, err := b.Build(root, "Music", first.Dir)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if second.ExistingFiles != 2 || second.NewFiles != 0 {
		t.Fatalf("expected both files to be recognized as existing on a re-walk, got existing=%d new=%d", second.ExistingFiles, second.NewFiles)
	}
	if second.ExistingDirs != 1 {
		t.Fatalf("expected Albums to be recognized as an existing dir, got %d", second.ExistingDirs)
	}
}
