// Package identity models the ADC identity types: the 192-bit
// CID/PID pair, per-hub SID, the capability flag set, User, and Identity
// (a User bound to one hub session's attribute map).
//
// CID follows a value-type-with-equality shape, modeled on
// blob.Ref (_examples/perkeep-perkeep/pkg/blob/ref.go): a fixed-size byte
// array boxed so it supports == and works as a map key, with
// String/Parse/MarshalBinary methods alongside it.
package identity

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"io"

	"github.com/airdcpp-web/dcppcore/tiger"
)

const rawLen = 24 // 192 bits

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// PID is the per-install private identifier. It is sent once, in
// cleartext, in the first INF a client posts to a hub (field "ID" carries
// CID, "PD" carries PID) — deliberately only to the hub that assigns our
// own SID, never broadcast to other users or derived back from a CID.
type PID [rawLen]byte

// NewPID generates a fresh random private identifier.
func NewPID() (PID, error) {
	var p PID
	if _, err := io.ReadFull(rand.Reader, p[:]); err != nil {
		return PID{}, err
	}
	return p, nil
}

func (p PID) IsZero() bool { return p == PID{} }

func (p PID) String() string { return b32.EncodeToString(p[:]) }

// CID is derived as Tiger(PID).
type CID [rawLen]byte

// CIDFromPID derives the content identifier from a private identifier.
func CIDFromPID(p PID) CID {
	h := tiger.New()
	h.Write(p[:])
	var c CID
	copy(c[:], h.Sum(nil))
	return c
}

func (c CID) IsZero() bool { return c == CID{} }

func (c CID) String() string { return b32.EncodeToString(c[:]) }

// ParseCID parses the base-32 text form of a CID.
func ParseCID(s string) (CID, error) {
	var c CID
	raw, err := b32.DecodeString(s)
	if err != nil {
		return c, err
	}
	if len(raw) != rawLen {
		return c, errors.New("identity: invalid CID length")
	}
	copy(c[:], raw)
	return c, nil
}

func (c CID) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), c[:]...), nil
}

func (c *CID) UnmarshalBinary(data []byte) error {
	if len(data) != rawLen {
		return errors.New("identity: invalid CID binary length")
	}
	copy(c[:], data)
	return nil
}
