package identity

import "testing"

func TestCIDFromPIDDeterministic(t *testing.T) {
	pid, err := NewPID()
	if err != nil {
		t.Fatal(err)
	}
	c1 := CIDFromPID(pid)
	c2 := CIDFromPID(pid)
	if c1 != c2 {
		t.Fatalf("CIDFromPID not deterministic")
	}
}

func TestCIDRoundTrip(t *testing.T) {
	pid, _ := NewPID()
	c := CIDFromPID(pid)
	s := c.String()
	got, err := ParseCID(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Fatalf("round trip mismatch")
	}
}

func TestSIDRoundTrip(t *testing.T) {
	for _, v := range []SID{0, 1, 31, 32, 1 << 20} {
		s := v.String()
		got, err := ParseSID(s)
		if err != nil {
			t.Fatalf("ParseSID(%q): %v", s, err)
		}
		if got != v {
			t.Fatalf("SID round trip: got %d want %d", got, v)
		}
	}
}

func TestIdentitySetDiff(t *testing.T) {
	u := NewUser(CID{})
	id := NewIdentity(u, SID(1))
	if !id.Set("NI", "Alice") {
		t.Fatalf("first set should report changed")
	}
	if id.Set("NI", "Alice") {
		t.Fatalf("same value should not report changed")
	}
	if !id.Set("NI", "Bob") {
		t.Fatalf("different value should report changed")
	}
	if id.Nick() != "Bob" {
		t.Fatalf("Nick() = %q, want Bob", id.Nick())
	}
}

func TestUserRefCounting(t *testing.T) {
	u := NewUser(CID{})
	u.AddRef()
	u.AddRef()
	if last := u.Release(); last {
		t.Fatalf("should not be last after one release of two refs")
	}
	if last := u.Release(); !last {
		t.Fatalf("should be last after releasing final ref")
	}
}

func TestConnectModeActive(t *testing.T) {
	u := NewUser(CID{})
	id := NewIdentity(u, SID(5))
	id.Set("I4", "1.2.3.4")
	id.RecomputeConnectModes(nil, false)
	if id.TCPConnectMode() != ConnActiveV4 {
		t.Fatalf("expected ConnActiveV4, got %v", id.TCPConnectMode())
	}
}
