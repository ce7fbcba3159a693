package share

import "github.com/airdcpp-web/dcppcore/adc"

// BloomResponse is what a "GET blom 0 <size> <k> <h>" request resolves
// to: either a freshly built bit pattern at the requested (k, h)
// geometry, or a rejection status if the request fails BloomSizeGuard.
type BloomResponse struct {
	Bits []byte
	Sta  *adc.Command // non-nil only on rejection
}

// Respond builds the bit pattern a hub's Bloom request asked for, copying
// every currently indexed name token into a fresh filter sized exactly to
// the caller's k/h, or returns a rejection STA if the guard fails.
func (t *Tree) Respond(k, h int) BloomResponse {
	t.mu.RLock()
	fileCount := len(t.byTTH)
	tokens := make([]string, 0, len(t.byLower))
	for lower := range t.byLower {
		tokens = append(tokens, lower)
	}
	for _, files := range t.byTTH {
		for _, f := range files {
			tokens = append(tokens, f.Name.Lower)
		}
	}
	t.mu.RUnlock()

	if err := BloomSizeGuard(k, h, fileCount); err != nil {
		msg := "Unsupported k"
		switch err {
		case errBloomH:
			msg = "Unsupported h"
		case errBloomSize:
			msg = "Bloom size too large"
		}
		return BloomResponse{Sta: adc.NewSTA(adc.CodeBadPassword, msg)}
	}

	b := NewBloomKH(k, h)
	for _, tok := range tokens {
		b.Add(tok)
	}
	return BloomResponse{Bits: b.Bits()}
}
