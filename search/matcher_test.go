package search

import (
	"testing"

	"github.com/airdcpp-web/dcppcore/share"
)

func buildMatcherTree(t *testing.T) *share.Tree {
	t.Helper()
	tree := share.NewTree()
	root := share.NewShareRoot("/mnt/music", "Music")
	root.Profiles["default"] = true
	top := tree.AddRoot(root)

	albums := share.NewDirectory("Albums", top)
	top.Dirs["albums"] = albums

	rock := share.NewDirectory("Rock", albums)
	albums.Dirs["rock"] = rock

	song := &share.File{Name: share.NewDualString("epic song.flac"), Size: 2048, Parent: rock, TTH: share.Hash([]byte("epic"))}
	rock.Files["epic song.flac"] = song

	readme := &share.File{Name: share.NewDualString("readme.txt"), Size: 10, Parent: top, TTH: share.Hash([]byte("readme"))}
	top.Files["readme.txt"] = readme

	tree.Splice(root.RealPath, top)
	return tree
}

func TestMatchFindsFileByIncludeToken(t *testing.T) {
	tree := buildMatcherTree(t)
	q := ParseADC([]string{"ANepic"}, 0)
	results := Match(tree, "default", q)

	if len(results) != 1 || results[0].File == nil || results[0].File.Name.Orig != "epic song.flac" {
		t.Fatalf("expected exactly one file match, got %v", results)
	}
}

func TestMatchFindsFileAcrossDirectoryRecursion(t *testing.T) {
	tree := buildMatcherTree(t)
	// "rock" only appears in a directory name; "epic" only in the file.
	q := ParseADC([]string{"ANrock", "ANepic"}, 0)
	results := Match(tree, "default", q)

	if len(results) != 1 || results[0].File == nil {
		t.Fatalf("expected the recursive include match to find the file under Rock, got %v", results)
	}
}

func TestMatchByTTHIsSetMembership(t *testing.T) {
	tree := buildMatcherTree(t)
	want := share.Hash([]byte("epic"))
	q := ParseADC([]string{"TR" + want.String()}, 0)
	results := Match(tree, "default", q)

	if len(results) != 1 || results[0].File.TTH != want {
		t.Fatalf("expected a single TTH match, got %v", results)
	}
}

func TestMatchRespectsMaxResults(t *testing.T) {
	tree := buildMatcherTree(t)
	q := ParseADC([]string{"ANe"}, 1) // "e" appears in both readme.txt and epic song.flac
	results := Match(tree, "default", q)
	if len(results) != 1 {
		t.Fatalf("expected MaxResults=1 to cap the result list, got %d", len(results))
	}
}

func TestMatchHiddenFromOtherProfile(t *testing.T) {
	tree := buildMatcherTree(t)
	q := ParseADC([]string{"ANepic"}, 0)
	results := Match(tree, "other", q)
	if len(results) != 0 {
		t.Fatalf("expected no results for a profile that isn't shared to, got %v", results)
	}
}

func TestMatchExtensionFilter(t *testing.T) {
	tree := buildMatcherTree(t)
	q := ParseADC([]string{"EXtxt"}, 0)
	results := Match(tree, "default", q)
	if len(results) != 1 || results[0].File.Name.Orig != "readme.txt" {
		t.Fatalf("expected only readme.txt to match the .txt extension filter, got %v", results)
	}
}
