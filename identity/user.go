package identity

import "sync"

// User is shared across every hub the same CID appears on; OnlineUsers
// (see Identity) are created and destroyed per hub session, but the User
// itself persists until nothing references it any more
// lifecycle: no hub, no favourite, no queue entry, no chat refers to it).
type User struct {
	mu    sync.RWMutex
	cid   CID
	flags FlagSet
	refs  int // hub/favourite/queue/chat reference count
}

// NewUser constructs a User for a CID with no flags and zero references.
func NewUser(cid CID) *User {
	return &User{cid: cid}
}

func (u *User) CID() CID { return u.cid }

func (u *User) Flags() FlagSet {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.flags
}

func (u *User) SetFlag(f Flag, v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.flags.SetTo(f, v)
}

func (u *User) HasFlag(f Flag) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.flags.Has(f)
}

// AddRef and Release implement the reference-counted lifecycle described
// a User is destroyed only once every referrer has released
// it. Callers (registry) are responsible for actually removing the User
// from their maps once Release reports the last reference dropped.
func (u *User) AddRef() {
	u.mu.Lock()
	u.refs++
	u.mu.Unlock()
}

// Release decrements the reference count and reports whether this was the
// last reference (i.e. the User is now eligible for destruction).
func (u *User) Release() (last bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.refs > 0 {
		u.refs--
	}
	return u.refs == 0
}
