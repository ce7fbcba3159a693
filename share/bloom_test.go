package share

import "testing"

func TestBloomAddContains(t *testing.T) {
	b := NewBloom(1 << 12)
	b.Add("alice")
	b.Add("bob")

	if !b.Contains("alice") || !b.Contains("bob") {
		t.Fatal("expected both added tokens to be reported present")
	}
}

func TestBloomKHExactGeometry(t *testing.T) {
	b := NewBloomKH(3, 10)
	if b.K() != 3 {
		t.Fatalf("K() = %d, want 3", b.K())
	}
	if b.H() != 10 {
		t.Fatalf("H() = %d, want 10", b.H())
	}
	if len(b.Bits()) != (1<<10)/8 {
		t.Fatalf("bit array size = %d, want %d", len(b.Bits()), (1<<10)/8)
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{0: 8, 1: 8, 8: 8, 9: 16, 1000: 1024}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
