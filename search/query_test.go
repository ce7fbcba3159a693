package search

import (
	"testing"

	"github.com/airdcpp-web/dcppcore/share"
)

func TestParseNMDCSplitsOnDollar(t *testing.T) {
	q := ParseNMDC("foo$bar$$baz", SizeNone, 0, NMDCAny, 0)
	if q.Include.Count() != 3 {
		t.Fatalf("expected 3 include tokens (empty segments dropped), got %d: %v", q.Include.Count(), q.Include.Patterns())
	}
}

func TestParseNMDCTTHPrefix(t *testing.T) {
	want := share.Hash([]byte("hello"))
	q := ParseNMDC("TTH:"+want.String(), SizeNone, 0, NMDCTTH, 0)
	if q.Root == nil || *q.Root != want {
		t.Fatalf("expected TTH root %v, got %v", want, q.Root)
	}
}

func TestParseNMDCSizeAndTypeGroup(t *testing.T) {
	q := ParseNMDC("song", SizeAtLeast, 1024, NMDCAudio, 10)
	if q.Gt != 1024 {
		t.Fatalf("expected Gt=1024, got %d", q.Gt)
	}
	if len(q.Ext) == 0 {
		t.Fatal("expected the audio extension group to populate Ext")
	}
	found := false
	for _, e := range q.Ext {
		if e == "flac" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected flac in the audio extension group, got %v", q.Ext)
	}
}

func TestParseADCAttributes(t *testing.T) {
	q := ParseADC([]string{"ANfoo", "NObar", "EXmp3", "GE1000", "LE2000", "TY1"}, 5)
	if q.Include.Count() != 1 || q.Exclude.Count() != 1 {
		t.Fatalf("expected one include and one exclude token, got %d/%d", q.Include.Count(), q.Exclude.Count())
	}
	if q.Gt != 1000 || q.Lt != 2000 {
		t.Fatalf("expected size range [1000,2000], got [%d,%d]", q.Gt, q.Lt)
	}
	if q.ItemType != TypeFile {
		t.Fatalf("expected TY1 to set ItemType=TypeFile, got %v", q.ItemType)
	}
	if len(q.Ext) != 1 || q.Ext[0] != "mp3" {
		t.Fatalf("expected Ext=[mp3], got %v", q.Ext)
	}
}

func TestParseADCTTHRoot(t *testing.T) {
	want := share.Hash([]byte("content"))
	q := ParseADC([]string{"TR" + want.String()}, 1)
	if q.Root == nil || *q.Root != want {
		t.Fatalf("expected TR to set Root to %v, got %v", want, q.Root)
	}
}

func TestExtensionExcludedByRX(t *testing.T) {
	// GR2 selects the archive group (bit 1); zip belongs to it.
	q := ParseADC([]string{"GR2", "RXzip"}, 0)
	for _, e := range q.Ext {
		if e == "zip" {
			t.Fatal("expected RXzip to remove zip from the archive group")
		}
	}
	if len(q.Ext) == 0 {
		t.Fatal("expected other archive extensions to remain after removing zip")
	}
}
