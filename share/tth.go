package share

import "github.com/airdcpp-web/dcppcore/tiger"

// TTH is the content address of a shared file, the 192-bit Tiger Tree
// Hash root. Wrapped the same way identity.CID wraps its raw array so it
// works as a map key and carries String/Parse alongside it.
type TTH [24]byte

func (t TTH) String() string { return tiger.Base32(t) }

func (t TTH) IsZero() bool { return t == TTH{} }

// ParseTTH parses the wire base-32 form of a TTH.
func ParseTTH(s string) (TTH, error) {
	raw, err := tiger.ParseBase32(s)
	if err != nil {
		return TTH{}, err
	}
	return TTH(raw), nil
}

// Hash computes the TTH of an in-memory byte slice.
func Hash(data []byte) TTH {
	return TTH(tiger.TTH(data))
}
