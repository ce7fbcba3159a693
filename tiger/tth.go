package tiger

import "encoding/base32"

// TTHLeafSize is the amount of file data hashed into one TTH leaf, per the
// DC TTH convention (1024 bytes).
const TTHLeafSize = 1024

// leafPrefix and nodePrefix are prepended to the hashed data to distinguish
// leaf nodes from internal nodes in the Merkle tree, per the Tiger Tree
// Hash construction.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// TreeHasher incrementally computes the TTH of a stream of bytes without
// buffering the whole file: it accumulates 1024-byte leaves and folds pairs
// of hashes bottom-up as soon as a level has two results ready.
type TreeHasher struct {
	buf     []byte
	levels  [][][24]byte // levels[0] = leaf hashes, levels[1] = folded once, ...
	written int64
}

// NewTreeHasher returns a fresh incremental TTH builder.
func NewTreeHasher() *TreeHasher {
	return &TreeHasher{buf: make([]byte, 0, TTHLeafSize)}
}

// Write feeds file bytes into the hasher, in order.
func (t *TreeHasher) Write(p []byte) (int, error) {
	n := len(p)
	t.written += int64(n)
	for len(p) > 0 {
		room := TTHLeafSize - len(t.buf)
		take := room
		if take > len(p) {
			take = len(p)
		}
		t.buf = append(t.buf, p[:take]...)
		p = p[take:]
		if len(t.buf) == TTHLeafSize {
			t.pushLeaf(t.buf)
			t.buf = t.buf[:0]
		}
	}
	return n, nil
}

func (t *TreeHasher) pushLeaf(data []byte) {
	h := leafHash(data)
	t.pushAt(0, h)
}

func (t *TreeHasher) pushAt(level int, h [24]byte) {
	for len(t.levels) <= level {
		t.levels = append(t.levels, nil)
	}
	t.levels[level] = append(t.levels[level], h)
	if len(t.levels[level]) == 2 {
		a, b := t.levels[level][0], t.levels[level][1]
		t.levels[level] = nil
		t.pushAt(level+1, nodeHash(a, b))
	}
}

// Sum finalizes the hasher and returns the 192-bit TTH root.
func (t *TreeHasher) Sum() [24]byte {
	if len(t.buf) > 0 || t.written == 0 {
		t.pushLeaf(t.buf)
		t.buf = t.buf[:0]
	}
	// Fold remaining partial levels bottom-up: a level with a single
	// pending hash is carried up combined with nothing until it meets a
	// sibling, following the canonical "carry the odd one up" TTH rule.
	var carry [24]byte
	haveCarry := false
	for _, lvl := range t.levels {
		if len(lvl) == 0 {
			continue
		}
		h := lvl[0]
		if haveCarry {
			carry = nodeHash(h, carry)
		} else {
			carry = h
			haveCarry = true
		}
	}
	if !haveCarry {
		return leafHash(nil)
	}
	return carry
}

func leafHash(data []byte) [24]byte {
	h := New()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	var out [24]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(a, b [24]byte) [24]byte {
	h := New()
	h.Write([]byte{nodePrefix})
	h.Write(a[:])
	h.Write(b[:])
	var out [24]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TTH computes the Tiger Tree Hash root of an in-memory byte slice.
func TTH(data []byte) [24]byte {
	th := NewTreeHasher()
	th.Write(data)
	return th.Sum()
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Base32 renders a TTH root in RFC 4648 base-32, no padding, as used on
// the wire (e.g. "TTH/<b32>").
func Base32(sum [24]byte) string {
	return b32.EncodeToString(sum[:])
}

// DecodeBase32 decodes an arbitrary-length RFC 4648 base-32 token with no
// padding, the same alphabet ParseBase32 uses for a TTH root but without
// the fixed 24-byte length (a GPA salt's length is hub-chosen).
func DecodeBase32(s string) ([]byte, error) {
	return b32.DecodeString(s)
}

// ParseBase32 parses the wire base-32 form of a TTH root.
func ParseBase32(s string) ([24]byte, error) {
	var out [24]byte
	raw, err := b32.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 24 {
		return out, errTTHLength
	}
	copy(out[:], raw)
	return out, nil
}

type tthLenErr struct{}

func (tthLenErr) Error() string { return "tiger: invalid TTH length" }

var errTTHLength error = tthLenErr{}
