package upload

import (
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/identity"
)

// notifiedTokenTTL is how long a notified user's cached dial-back token
// stays valid, ported from UploadManager::onTimerMinute's
// `(i->second + (90 * 1000)) < aTick` expiry check.
const notifiedTokenTTL = 90 * time.Second

// Notifier runs the once-a-second free-slot notification loop: when
// slots free up, it pops waiting users off the queue (FIFO) and caches
// their dial-back token until either the caller reports they reconnected
// or the token expires. Grounded on
// UploadManager::notifyQueuedUsers/on(Minute).
type Notifier struct {
	mu        sync.Mutex
	waiting   []identity.CID
	waitingOk map[identity.CID]bool // fast membership test, mirrors an unordered companion set in the original
	notified  map[identity.CID]time.Time
	dial      func(cid identity.CID) // hub callback asking the peer to reconnect and re-issue its GET
}

// NewNotifier constructs an empty Notifier. SetDialFunc must be called
// before Tick can usefully notify anyone.
func NewNotifier() *Notifier {
	return &Notifier{
		waitingOk: make(map[identity.CID]bool),
		notified:  make(map[identity.CID]time.Time),
	}
}

// SetDialFunc installs the hub callback used to ask a peer to reconnect.
func (n *Notifier) SetDialFunc(f func(cid identity.CID)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dial = f
}

// Enqueue adds cid to the waiting list if it isn't already queued or
// already notified.
func (n *Notifier) Enqueue(cid identity.CID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.waitingOk[cid] {
		return
	}
	if _, ok := n.notified[cid]; ok {
		return
	}
	n.waiting = append(n.waiting, cid)
	n.waitingOk[cid] = true
}

// Remove drops cid from both the waiting list and the notified cache,
// called once its upload actually starts.
func (n *Notifier) Remove(cid identity.CID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removeFromWaitingLocked(cid)
	delete(n.notified, cid)
}

func (n *Notifier) removeFromWaitingLocked(cid identity.CID) {
	if !n.waitingOk[cid] {
		return
	}
	delete(n.waitingOk, cid)
	for i, c := range n.waiting {
		if c == cid {
			n.waiting = append(n.waiting[:i], n.waiting[i+1:]...)
			break
		}
	}
}

// Empty reports whether nobody is waiting or cached as notified, the
// hasFreeSlot precondition checkslots consults.
func (n *Notifier) Empty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.waiting) == 0 && len(n.notified) == 0
}

// IsNotified reports whether cid currently holds a cached dial-back
// token, letting its own reconnect through even though the queue isn't
// empty.
func (n *Notifier) IsNotified(cid identity.CID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.notified[cid]
	return ok
}

// Tick pops up to freeSlots waiting users (FIFO) and asks the hub to
// dial each of them, caching the token; it also expires any cached token
// past notifiedTokenTTL. Called once a second by Manager.Run, matching
// notifyQueuedUsers's own call sites (on(Second) and on(Minute) both
// call it, plus every time a slot frees up).
func (n *Notifier) Tick(freeSlots int) {
	n.mu.Lock()
	now := time.Now()
	for cid, at := range n.notified {
		if now.Sub(at) >= notifiedTokenTTL {
			delete(n.notified, cid)
		}
	}

	var toDial []identity.CID
	for freeSlots > 0 && len(n.waiting) > 0 {
		cid := n.waiting[0]
		n.waiting = n.waiting[1:]
		delete(n.waitingOk, cid)
		n.notified[cid] = now
		toDial = append(toDial, cid)
		freeSlots--
	}
	dial := n.dial
	n.mu.Unlock()

	if dial == nil {
		return
	}
	for _, cid := range toDial {
		dial(cid)
	}
}
