package hub

// Feature codes exchanged in SUP.
const (
	FeaBAS0 = "BAS0"
	FeaBASE = "BASE"
	FeaTIGR = "TIGR"
	FeaUCM0 = "UCM0"
	FeaBLO0 = "BLO0"
	FeaZLIF = "ZLIF"
	FeaHBRI = "HBRI"
	FeaNAT0 = "NAT0"
	FeaTCP4 = "TCP4"
	FeaTCP6 = "TCP6"
)

// OurFeatures is the feature set we always advertise in SUP.
var OurFeatures = []string{FeaBAS0, FeaBASE, FeaTIGR, FeaUCM0, FeaBLO0, FeaZLIF, FeaHBRI}

// ProtoADC is the plaintext peer-connection protocol token carried in
// CTM/RCM/NAT/RNT, as opposed to the TLS-wrapped ADCS/0.10.
const ProtoADC = "ADC/1.0"

func intersect(a, b []string) map[string]bool {
	bs := make(map[string]bool, len(b))
	for _, f := range b {
		bs[f] = true
	}
	out := make(map[string]bool)
	for _, f := range a {
		if bs[f] {
			out[f] = true
		}
	}
	return out
}

func hasAny(set map[string]bool, feats ...string) bool {
	for _, f := range feats {
		if set[f] {
			return true
		}
	}
	return false
}
