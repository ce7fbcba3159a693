package share

import "strings"

// DualString stores a name alongside its lower-cased form so that
// case-insensitive lookups and comparisons never repeat the ToLower
// conversion on every access.
type DualString struct {
	Orig  string
	Lower string
}

// NewDualString builds a DualString from the real (case-preserving) name.
func NewDualString(orig string) DualString {
	return DualString{Orig: orig, Lower: strings.ToLower(orig)}
}
