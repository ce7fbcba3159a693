package identity

// Flag is a bit in a User's capability/state flag set.
type Flag uint32

const (
	FlagOnline Flag = 1 << iota
	FlagBot
	FlagHub
	FlagFavourite
	FlagIgnored
	FlagTLS
	FlagCCPM
	FlagASCH
	FlagNMDCOnly
	FlagNoADC10
	FlagNoADCS010
)

// FlagSet is a bitmask of Flag values.
type FlagSet uint32

func (fs FlagSet) Has(f Flag) bool    { return fs&FlagSet(f) != 0 }
func (fs *FlagSet) Set(f Flag)        { *fs |= FlagSet(f) }
func (fs *FlagSet) Clear(f Flag)      { *fs &^= FlagSet(f) }
func (fs *FlagSet) SetTo(f Flag, v bool) {
	if v {
		fs.Set(f)
	} else {
		fs.Clear(f)
	}
}

// ConnectMode classifies how a peer can be reached, cached per identity
// for both TCP and UDP, recomputed whenever that identity's
// attributes or our own identity change.
type ConnectMode int

const (
	ConnUndefined ConnectMode = iota
	ConnMe
	ConnNoConnectIP
	ConnNoConnectPassive
	ConnActiveDual
	ConnActiveV4
	ConnActiveV6
	ConnPassiveV4
	ConnPassiveV6
	ConnPassiveV4Unknown
	ConnPassiveV6Unknown
)
