package upload

import "testing"

func TestPoolResumeReturnsAndRemovesEntry(t *testing.T) {
	p := NewPool()
	cid := cidOf(1)
	p.Add("tok", cid, "/real/path", ClassStd, nil)

	gotCID, gotPath, gotClass, ok := p.Resume("tok")
	if !ok || gotCID != cid || gotPath != "/real/path" || gotClass != ClassStd {
		t.Fatalf("expected Resume to return the added entry, got %v %v %v %v", gotCID, gotPath, gotClass, ok)
	}
	if _, _, _, ok := p.Resume("tok"); ok {
		t.Fatal("expected Resume to remove the entry so a second call misses")
	}
}

func TestPoolTickExpiresAfterLingerWindow(t *testing.T) {
	p := NewPool()
	var cancelled bool
	p.Add("tok", cidOf(1), "/p", ClassSmall, func() { cancelled = true })

	for i := 0; i < delayLingerTicks; i++ {
		if expired := p.Tick(); len(expired) != 0 {
			t.Fatalf("did not expect eviction before the linger window elapsed, tick %d", i)
		}
	}
	expired := p.Tick()
	if len(expired) != 1 || expired[0].Class != ClassSmall {
		t.Fatalf("expected the entry to expire on the tick after delayLingerTicks, got %v", expired)
	}
	if !cancelled {
		t.Fatal("expected the cancel callback to run on expiry")
	}
	if p.Len() != 0 {
		t.Fatalf("expected the pool to be empty after expiry, got %d", p.Len())
	}
}

func TestPoolTokensForPath(t *testing.T) {
	p := NewPool()
	p.Add("a", cidOf(1), "/x", ClassStd, nil)
	p.Add("b", cidOf(2), "/y", ClassStd, nil)
	p.Add("c", cidOf(3), "/x", ClassStd, nil)

	toks := p.TokensForPath("/x")
	if len(toks) != 2 {
		t.Fatalf("expected two tokens for /x, got %v", toks)
	}
}
