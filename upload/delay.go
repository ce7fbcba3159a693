package upload

import (
	"sync"

	"github.com/airdcpp-web/dcppcore/identity"
)

// delayLingerTicks matches the original's `++u->delayTime > 10` check in
// on(Second): a finished resumable-chunked upload is kept around for ten
// one-second ticks so the peer can re-request the remainder of the file
// over the same logical connection without renegotiating a slot.
const delayLingerTicks = 10

// delayedUpload is one upload that finished its current chunk in
// resumable chunked mode and is lingering for a possible continuation.
type delayedUpload struct {
	cid       identity.CID
	path      string
	class     Class
	delayTime int
	cancel    func()
}

// Pool holds uploads that finished but may still be resumed. Grounded on
// UploadManager's delayUploads list and its on(Second) linger/cleanup.
type Pool struct {
	mu   sync.Mutex
	byID map[string]*delayedUpload
}

// NewPool constructs an empty delay pool.
func NewPool() *Pool {
	return &Pool{byID: make(map[string]*delayedUpload)}
}

// Add places an upload into the pool, keyed by a caller-chosen id (the
// same connection token HandleGet used while the upload was running).
// cancel, if non-nil, is called when the upload expires out of the pool
// without being resumed.
func (p *Pool) Add(id string, cid identity.CID, path string, class Class, cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[id] = &delayedUpload{cid: cid, path: path, class: class, cancel: cancel}
}

// Resume removes and returns the delayed upload for id, if the peer
// reconnected and re-requested before it expired.
func (p *Pool) Resume(id string) (cid identity.CID, path string, class Class, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, found := p.byID[id]
	if !found {
		return identity.CID{}, "", ClassNone, false
	}
	delete(p.byID, id)
	return u.cid, u.path, u.class, true
}

// expiredEntry describes one upload evicted from the pool by Tick.
type expiredEntry struct {
	CID   identity.CID
	Class Class
}

// Tick advances every lingering upload's delay clock by one second,
// evicting (and cancelling) any that crossed delayLingerTicks, and
// returns the evicted entries so the caller can release their slots.
func (p *Pool) Tick() []expiredEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []expiredEntry
	for id, u := range p.byID {
		u.delayTime++
		if u.delayTime > delayLingerTicks {
			if u.cancel != nil {
				u.cancel()
			}
			expired = append(expired, expiredEntry{u.cid, u.class})
			delete(p.byID, id)
		}
	}
	return expired
}

// Len reports how many uploads are currently lingering.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// TokensForPath returns the ids of every lingering upload of realPath,
// for abortUpload to cancel and evict.
func (p *Pool) TokensForPath(realPath string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id, u := range p.byID {
		if u.path == realPath {
			out = append(out, id)
		}
	}
	return out
}
