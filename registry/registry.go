// Package registry tracks the process-wide set of live hub connections
// and the online users seen across all of them. Grounded on
// pkg/blobserver/registry.go's shape (a mutex-guarded, string-keyed
// constructor/instance map) adapted from "registry of storage
// constructors" to "registry of live hub clients", plus a CID-keyed
// multimap of online users and a token map for correlating an incoming
// peer connection back to the hub session that issued its connect
// request.
//
// Lock ordering: Registry's own mutex is always acquired and released
// before calling into any *hub.Client method, and never held while one
// is in flight. A Client's own lock may in turn be taken while the
// share tree's lock is held (e.g. building a file list for an upload),
// so the ordering through the whole core is Registry -> Client ->
// share.Tree; nothing ever acquires in the other direction.
package registry

import (
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/hub"
	"github.com/airdcpp-web/dcppcore/identity"
)

// tokenTTL bounds how long a registered connect token stays resolvable.
// A CTM/RCM exchange is expected to produce an incoming connection within
// seconds; anything still unclaimed after this long is stale.
const tokenTTL = 60 * time.Second

type tokenEntry struct {
	client *hub.Client
	at     time.Time
}

// Registry is the process-wide directory of hub connections. The zero
// value is not usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	byURL   map[string]*hub.Client
	byToken map[string]tokenEntry

	// users maps a CID to every OnlineUser identity currently seen for
	// it, one per hub the peer shares with us on, since the same user
	// can be present on more than one connected hub simultaneously.
	users map[identity.CID]map[*hub.Client]*identity.OnlineUser
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byURL:   make(map[string]*hub.Client),
		byToken: make(map[string]tokenEntry),
		users:   make(map[identity.CID]map[*hub.Client]*identity.OnlineUser),
	}
}

// AddClient registers a hub client under its configured URL. Replacing an
// existing entry for the same URL is the caller's responsibility to avoid
// (reconnect flows should RemoveClient the old one first).
func (r *Registry) AddClient(url string, c *hub.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byURL[url] = c
}

// RemoveClient drops url from the registry and clears every online-user
// entry attributed to it, mirroring a hub disconnect's effect on presence.
func (r *Registry) RemoveClient(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byURL[url]
	if !ok {
		return
	}
	delete(r.byURL, url)
	for cid, byClient := range r.users {
		delete(byClient, c)
		if len(byClient) == 0 {
			delete(r.users, cid)
		}
	}
	for tok, e := range r.byToken {
		if e.client == c {
			delete(r.byToken, tok)
		}
	}
}

// ClientByURL returns the hub client registered under url, if any.
func (r *Registry) ClientByURL(url string) (*hub.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byURL[url]
	return c, ok
}

// Clients returns a snapshot of every registered hub client, safe to
// range over and call into without holding the registry lock.
func (r *Registry) Clients() []*hub.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*hub.Client, 0, len(r.byURL))
	for _, c := range r.byURL {
		out = append(out, c)
	}
	return out
}

// RegisterToken remembers that c issued a connect token, so a later
// incoming connection carrying that token can be attributed back to it.
func (r *Registry) RegisterToken(token string, c *hub.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[token] = tokenEntry{client: c, at: time.Now()}
}

// ResolveToken looks up and consumes a registered token; a token resolves
// at most once, and never past tokenTTL.
func (r *Registry) ResolveToken(token string) (*hub.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byToken[token]
	if !ok {
		return nil, false
	}
	delete(r.byToken, token)
	if time.Since(e.at) > tokenTTL {
		return nil, false
	}
	return e.client, true
}

// ExpireTokens drops any registered token older than tokenTTL, meant to be
// called periodically (e.g. alongside the upload scheduler's own ticks)
// so a client that never received its expected incoming connection
// doesn't leak a token entry forever.
func (r *Registry) ExpireTokens() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for tok, e := range r.byToken {
		if now.Sub(e.at) > tokenTTL {
			delete(r.byToken, tok)
		}
	}
}

// NoteUserJoined records ou as online on c, for a hub.Listener's
// OnUserJoined/OnUserUpdated callback to call directly.
func (r *Registry) NoteUserJoined(c *hub.Client, ou *identity.OnlineUser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid := ou.User().CID()
	byClient, ok := r.users[cid]
	if !ok {
		byClient = make(map[*hub.Client]*identity.OnlineUser)
		r.users[cid] = byClient
	}
	byClient[c] = ou
}

// NoteUserParted removes the (c, cid) presence entry, for OnUserParted.
func (r *Registry) NoteUserParted(c *hub.Client, cid identity.CID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byClient, ok := r.users[cid]
	if !ok {
		return
	}
	delete(byClient, c)
	if len(byClient) == 0 {
		delete(r.users, cid)
	}
}

// UsersByCID returns every OnlineUser identity currently known for cid,
// one per hub it's visible on.
func (r *Registry) UsersByCID(cid identity.CID) []*identity.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byClient, ok := r.users[cid]
	if !ok {
		return nil
	}
	out := make([]*identity.OnlineUser, 0, len(byClient))
	for _, ou := range byClient {
		out = append(out, ou)
	}
	return out
}

// ClientForCID returns one hub client cid is currently visible on, along
// with the identity seen there, for callers (the upload notifier's
// dial-back, most notably) that need to address a specific peer but don't
// care which of several shared hubs carries the message. Arbitrary choice
// among ties, since any of them reaches the same peer.
func (r *Registry) ClientForCID(cid identity.CID) (*hub.Client, *identity.OnlineUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c, ou := range r.users[cid] {
		return c, ou, true
	}
	return nil, nil, false
}

// IsOnlineAnywhere reports whether cid is visible on at least one
// registered hub.
func (r *Registry) IsOnlineAnywhere(cid identity.CID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[cid]) > 0
}

// Broadcast calls fn once for every registered client, taking a snapshot
// first so fn is never called while the registry lock is held (fn may
// itself call back into the registry, e.g. to RegisterToken a new search
// dispatch).
func (r *Registry) Broadcast(fn func(*hub.Client)) {
	for _, c := range r.Clients() {
		fn(c)
	}
}
