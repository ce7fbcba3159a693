package tiger

import "testing"

func TestTTHDeterministic(t *testing.T) {
	data := make([]byte, TTHLeafSize*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	a := TTH(data)
	b := TTH(append([]byte(nil), data...))
	if a != b {
		t.Fatalf("TTH not deterministic: %x != %x", a, b)
	}
}

func TestTTHDiffersOnChange(t *testing.T) {
	a := TTH([]byte("hello world"))
	b := TTH([]byte("hello worlD"))
	if a == b {
		t.Fatalf("TTH collided on different input")
	}
}

func TestTTHIncrementalMatchesOneShot(t *testing.T) {
	data := make([]byte, TTHLeafSize*5+3)
	for i := range data {
		data[i] = byte(i * 7)
	}
	want := TTH(data)

	th := NewTreeHasher()
	for _, chunk := range [][]byte{data[:100], data[100:3000], data[3000:]} {
		th.Write(chunk)
	}
	got := th.Sum()
	if got != want {
		t.Fatalf("incremental TTH = %x, want %x", got, want)
	}
}

func TestBase32RoundTrip(t *testing.T) {
	sum := TTH([]byte("round trip me"))
	s := Base32(sum)
	got, err := ParseBase32(s)
	if err != nil {
		t.Fatalf("ParseBase32: %v", err)
	}
	if got != sum {
		t.Fatalf("round trip mismatch: %x != %x", got, sum)
	}
}

func TestEmptyInput(t *testing.T) {
	sum := TTH(nil)
	if sum != leafHash(nil) {
		t.Fatalf("empty TTH should equal leaf hash of empty data")
	}
}
