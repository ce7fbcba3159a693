package identity

import (
	"strconv"
	"strings"
	"sync"
)

// Identity binds a User to one hub session's SID and short-key attribute
// map (NI, DE, I4, I6, U4, U6, SS, SF, VE, AP, SU, DS, US, KP, CT, ...).
// The two connect-mode classifications are cached and recomputed whenever
// this identity's attributes, or our own identity, change.
type Identity struct {
	mu    sync.RWMutex
	user  *User
	sid   SID
	attrs map[string]string

	tcpMode ConnectMode
	udpMode ConnectMode
}

// NewIdentity constructs an Identity for a User newly joined under sid.
func NewIdentity(user *User, sid SID) *Identity {
	return &Identity{user: user, sid: sid, attrs: make(map[string]string)}
}

func (id *Identity) User() *User { return id.user }
func (id *Identity) SID() SID    { return id.sid }

// Get returns the value of a short-key attribute ("NI", "SS", ...).
func (id *Identity) Get(key string) string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.attrs[key]
}

func (id *Identity) GetInt64(key string) int64 {
	v, _ := strconv.ParseInt(id.Get(key), 10, 64)
	return v
}

// Set stores a short-key attribute, returning whether the value changed;
// an empty value removes the attribute.
func (id *Identity) Set(key, value string) (changed bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	old, existed := id.attrs[key]
	if existed && old == value {
		return false
	}
	if value == "" {
		delete(id.attrs, key)
	} else {
		id.attrs[key] = value
	}
	return true
}

// SetAll applies a batch of attributes (from a received INF) and reports
// which keys actually changed.
func (id *Identity) SetAll(kv map[string]string) (changed []string) {
	for k, v := range kv {
		if id.Set(k, v) {
			changed = append(changed, k)
		}
	}
	return changed
}

func (id *Identity) Nick() string { return id.Get("NI") }

// Features parses the comma-separated SU attribute into a set.
func (id *Identity) Features() map[string]bool {
	su := id.Get("SU")
	if su == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, f := range strings.Split(su, ",") {
		if f != "" {
			out[f] = true
		}
	}
	return out
}

func (id *Identity) SupportsFeature(f string) bool {
	return id.Features()[f]
}

// TCPConnectMode and UDPConnectMode return the cached classification.
func (id *Identity) TCPConnectMode() ConnectMode {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.tcpMode
}

func (id *Identity) UDPConnectMode() ConnectMode {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.udpMode
}

// RecomputeConnectModes re-derives TCP/UDP connect-mode classification
// against our own (local) identity: must be called whenever
// either identity changes.
func (id *Identity) RecomputeConnectModes(me *Identity, isSelf bool) {
	id.mu.Lock()
	defer id.mu.Unlock()
	if isSelf {
		id.tcpMode = ConnMe
		id.udpMode = ConnMe
		return
	}
	id.tcpMode = classify(id.attrs["I4"], id.attrs["I6"], me != nil)
	id.udpMode = classifyUDP(id.attrs["U4"], id.attrs["U6"], id.attrs["I4"], id.attrs["I6"])
}

func classify(i4, i6 string, haveMe bool) ConnectMode {
	switch {
	case i4 != "" && i6 != "":
		return ConnActiveDual
	case i4 != "":
		return ConnActiveV4
	case i6 != "":
		return ConnActiveV6
	case !haveMe:
		return ConnNoConnectIP
	default:
		return ConnPassiveV4Unknown
	}
}

func classifyUDP(u4, u6, i4, i6 string) ConnectMode {
	switch {
	case u4 != "" && i4 != "":
		return ConnActiveV4
	case u6 != "" && i6 != "":
		return ConnActiveV6
	case u4 != "":
		return ConnPassiveV4
	case u6 != "":
		return ConnPassiveV6
	default:
		return ConnNoConnectIP
	}
}

// OnlineUser is an Identity bound to one hub session; see Identity above,
// which already carries the SID. OnlineUser is kept as a distinct name in
// the hub package's SID table for readability at call sites, aliased here
// for the shared data-model definition.
type OnlineUser = Identity
