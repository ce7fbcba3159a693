package share

import (
	"strings"
	"testing"
)

func buildSampleTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()
	root := NewShareRoot("/mnt/music", "Music")
	root.Profiles["default"] = true
	top := tree.AddRoot(root)

	sub := NewDirectory("Albums", top)
	top.Dirs["albums"] = sub

	f := &File{Name: NewDualString("song.flac"), Size: 1024, Parent: sub, TTH: Hash([]byte("song bytes"))}
	sub.Files["song.flac"] = f

	tree.Splice(root.RealPath, top)
	return tree
}

func TestResolveDirectoryAndFile(t *testing.T) {
	tree := buildSampleTree(t)

	dir, file, err := tree.Resolve("/Music/Albums/", "default")
	if err != nil || dir == nil || file != nil {
		t.Fatalf("expected to resolve Albums directory, got dir=%v file=%v err=%v", dir, file, err)
	}

	_, file, err = tree.Resolve("/Music/Albums/song.flac", "default")
	if err != nil || file == nil {
		t.Fatalf("expected to resolve song.flac, got file=%v err=%v", file, err)
	}
}

func TestResolveHiddenFromOtherProfile(t *testing.T) {
	tree := buildSampleTree(t)
	_, _, err := tree.Resolve("/Music/", "other-profile")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for an unlisted profile, got %v", err)
	}
}

func TestFilesByTTH(t *testing.T) {
	tree := buildSampleTree(t)
	h := Hash([]byte("song bytes"))
	files := tree.FilesByTTH(h)
	if len(files) != 1 || files[0].Name.Orig != "song.flac" {
		t.Fatalf("expected exactly one file indexed by TTH, got %v", files)
	}
}

func TestBloomNeverFalseNegative(t *testing.T) {
	tree := buildSampleTree(t)
	bloom := tree.BloomFilter()
	for _, token := range []string{"music", "albums", "song.flac"} {
		if !bloom.Contains(token) {
			t.Fatalf("bloom filter must contain every indexed token, missing %q", token)
		}
	}
}

func TestBloomSizeGuardRejectsOutOfRangeK(t *testing.T) {
	if err := BloomSizeGuard(9, 32, 1000); err == nil {
		t.Fatal("expected k=9 to be rejected")
	}
	if err := BloomSizeGuard(5, 65, 1000); err == nil {
		t.Fatal("expected h=65 to be rejected")
	}
	if err := BloomSizeGuard(5, 20, 10); err == nil {
		t.Fatal("expected an oversized m for a tiny file count to be rejected")
	}
	if err := BloomSizeGuard(5, 8, 1000); err != nil {
		t.Fatalf("expected a reasonable k/h/fileCount combination to pass, got %v", err)
	}
}

func TestFullListIsCachedUntilInvalidated(t *testing.T) {
	tree := buildSampleTree(t)
	profile := tree.AddProfile("default", "Default")

	var writes int
	write := func(path string, data []byte) error {
		writes++
		if !strings.Contains(string(data), `Name="Albums"`) {
			t.Fatalf("expected full list to include Albums, got: %s", data)
		}
		return nil
	}

	path1, err := tree.FullList(profile, "ABCD", write, "/tmp/list.xml")
	if err != nil {
		t.Fatalf("FullList: %v", err)
	}
	path2, err := tree.FullList(profile, "ABCD", write, "/tmp/list.xml")
	if err != nil {
		t.Fatalf("FullList (cached): %v", err)
	}
	if path1 != path2 || writes != 1 {
		t.Fatalf("expected the second call to hit the cache, writes=%d", writes)
	}

	tree.Splice("/mnt/music", tree.topDirs["/mnt/music"])
	if _, err := tree.FullList(profile, "ABCD", write, "/tmp/list.xml"); err != nil {
		t.Fatalf("FullList after invalidation: %v", err)
	}
	if writes != 2 {
		t.Fatalf("expected a refresh to invalidate the cache, writes=%d", writes)
	}
}

func TestPartialListContainsExpectedEntries(t *testing.T) {
	tree := buildSampleTree(t)
	out, err := tree.PartialList("/Music/", "default", "ABCD", true)
	if err != nil {
		t.Fatalf("PartialList: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `Name="Albums"`) || !strings.Contains(s, `Name="song.flac"`) {
		t.Fatalf("expected both directory and file entries in listing, got: %s", s)
	}
}
