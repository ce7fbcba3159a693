// Package upload implements the GET request lifecycle: resolving a
// requested file against the share tree or the partial-sharing hash
// lookup, classifying the request into a slot class, and tracking the
// upload until it completes, is queued, or lingers in the delay pool.
package upload

import (
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/identity"
)

// Class is the slot a running upload is charged against.
type Class int

const (
	ClassNone Class = iota
	ClassStd
	ClassExtra
	ClassPartial
	ClassMCN
	ClassSmall
)

func (c Class) String() string {
	switch c {
	case ClassStd:
		return "STD"
	case ClassExtra:
		return "EXTRA"
	case ClassPartial:
		return "PARTIAL"
	case ClassMCN:
		return "MCN"
	case ClassSmall:
		return "SMALL"
	default:
		return "NONE"
	}
}

// smallFileThreshold matches the original's 65792 byte cutoff (64KiB of
// payload plus the largest TTH leaf boundary slack the protocol allows);
// any full-file or partial-list request at or under this size rides a
// SMALL slot instead of consuming a real one, up to maxSmallSlots at a
// time.
const smallFileThreshold = 65792

const maxSmallSlots = 8

// Limits configures the slot scheduler. MaxSlots is the configured
// standard slot count; MaxExtraSlots and MaxPartialSlots bound the
// mini-slot and partial-sharing overflow classes respectively.
type Limits struct {
	MaxSlots        int
	MaxExtraSlots   int
	MaxPartialSlots int
	AutoSlotUpload  func() bool // returns true while the "auto slot" heuristic (e.g. idle upload speed) grants a free extra slot
}

// Scheduler tracks how many slots of each class are currently charged
// and decides, per request, which class (if any) a new upload gets.
// Grounded on UploadManager's slotType switch in getUploadType/
// checkslots: the same five-way classification, ported into a single
// Go function rather than a goto-and-label state machine.
type Scheduler struct {
	limits Limits

	mu            sync.Mutex
	std           int
	extra         int
	partial       int
	small         int
	mcn           map[identity.CID]int // extra TCP connections charged against one logical MCN slot per peer
	reserved      map[identity.CID]struct{}
	favorite      map[identity.CID]bool
	uploading     map[identity.CID]int // count of in-flight uploads per peer, for the "don't double-queue an MCN peer" rule
}

// NewScheduler constructs a Scheduler with no slots charged.
func NewScheduler(limits Limits) *Scheduler {
	return &Scheduler{
		limits:    limits,
		mcn:       make(map[identity.CID]int),
		reserved:  make(map[identity.CID]struct{}),
		favorite:  make(map[identity.CID]bool),
		uploading: make(map[identity.CID]int),
	}
}

// Reserve grants a peer a slot reservation (e.g. after it was granted a
// single manual slot), consulted the same way checkslots consults
// reservedSlots.
func (s *Scheduler) Reserve(cid identity.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[cid] = struct{}{}
}

func (s *Scheduler) Unreserve(cid identity.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, cid)
}

// SetFavorite marks whether cid is a favorite user (always granted a
// slot), mirroring FavoriteManager::hasSlot.
func (s *Scheduler) SetFavorite(cid identity.CID, fav bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorite[cid] = fav
}

// FreeSlots returns how many standard slots remain unused. It can go
// negative in spirit (never in practice, classify refuses once empty).
func (s *Scheduler) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits.MaxSlots - s.std
}

func (s *Scheduler) freeExtraSlotsLocked() int {
	return s.limits.MaxExtraSlots - s.extra
}

// SlotRequest describes one GET needing classification.
type SlotRequest struct {
	CID               identity.CID
	IsMCN             bool
	MiniSlot          bool // the request is a partial list, or a full file at/under smallFileThreshold
	SupportsMinislots bool
	IsOp              bool
	PartialSharing    bool
	QueueEmpty        bool // the waiting queue and notified-user set are both empty
	IsNotifiedUser    bool
}

// Classify implements the checkslots decision tree: try SMALL first (the
// original checks it before anything else so large numbers of small
// requests never starve because the standard pool is full), then MCN,
// then a standard slot, falling back to EXTRA/PARTIAL mini-slot grants,
// and finally refusing (ok=false) so the caller can queue the request.
// isFullListRequest marks a GET for the entire share (TYPE_FULL_LIST):
// that one request type never qualifies for a SMALL slot regardless of
// the rendered document's size, matching
// `type != Transfer::TYPE_FULL_LIST` in the original condition.
func (s *Scheduler) Classify(r SlotRequest, fileSize int64, isFullListRequest bool) (Class, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (r.MiniSlot || (!isFullListRequest && fileSize <= smallFileThreshold)) && s.small < maxSmallSlots {
		s.small++
		return ClassSmall, true
	}

	isFavorite := s.favorite[r.CID]
	_, hasReserved := s.reserved[r.CID]
	autoSlot := s.limits.AutoSlotUpload != nil && s.limits.AutoSlotUpload()
	hasFreeSlot := s.FreeSlotsLocked() > 0 && (r.QueueEmpty || r.IsNotifiedUser)

	if r.IsMCN {
		if s.mcn[r.CID] > 0 || ((hasReserved || isFavorite || autoSlot) && s.uploading[r.CID] == 0) {
			s.mcn[r.CID]++
			return ClassMCN, true
		}
		return s.grantFallback(r, isFavorite, hasReserved, autoSlot)
	}

	if hasReserved || isFavorite || hasFreeSlot || autoSlot {
		s.std++
		return ClassStd, true
	}

	return s.grantFallback(r, isFavorite, hasReserved, autoSlot)
}

// FreeSlotsLocked is FreeSlots without re-acquiring the mutex, for
// internal callers already holding it.
func (s *Scheduler) FreeSlotsLocked() int { return s.limits.MaxSlots - s.std }

// grantFallback is the "noSlots" branch: a request that doesn't qualify
// for STD or MCN still gets EXTRA if it's a mini-slot-capable client, or
// PARTIAL if the source is being partially shared and the partial pool
// has room.
func (s *Scheduler) grantFallback(r SlotRequest, isFavorite, hasReserved, autoSlot bool) (Class, bool) {
	allowedFree := r.IsOp || s.freeExtraSlotsLocked() > 0
	if r.MiniSlot && r.SupportsMinislots && allowedFree {
		s.extra++
		return ClassExtra, true
	}
	if r.PartialSharing && s.partial < s.limits.MaxPartialSlots {
		s.partial++
		return ClassPartial, true
	}
	return ClassNone, false
}

// Release returns a charged slot, decrementing the matching counter.
// Grounded on removeConnection's per-slotType switch.
func (s *Scheduler) Release(cid identity.CID, class Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch class {
	case ClassStd:
		if s.std > 0 {
			s.std--
		}
	case ClassExtra:
		if s.extra > 0 {
			s.extra--
		}
	case ClassPartial:
		if s.partial > 0 {
			s.partial--
		}
	case ClassSmall:
		if s.small > 0 {
			s.small--
		}
	case ClassMCN:
		if s.mcn[cid] > 0 {
			s.mcn[cid]--
			if s.mcn[cid] == 0 {
				delete(s.mcn, cid)
			}
		}
	}
}

// MarkUploading/MarkIdle track per-peer in-flight upload counts so the
// MCN "don't grant a second logical slot to an already-uploading peer"
// rule can be enforced, and so the once-a-minute reconciler (see
// run.go) can detect drift between these hint counters and the live
// connection set.
func (s *Scheduler) MarkUploading(cid identity.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploading[cid]++
}

func (s *Scheduler) MarkIdle(cid identity.CID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploading[cid] > 0 {
		s.uploading[cid]--
		if s.uploading[cid] == 0 {
			delete(s.uploading, cid)
		}
	}
}

// Reconcile replaces the uploading-count hints with an authoritative
// snapshot from the live connection set, resolving the "transient
// over-reporting" drift the counters can accumulate between releases and
// new charges (Open Question decision: reconcile once a minute, never
// mid-request).
func (s *Scheduler) Reconcile(live map[identity.CID]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploading = make(map[identity.CID]int, len(live))
	for cid, n := range live {
		if n > 0 {
			s.uploading[cid] = n
		}
	}
}

// reconcileEvery is how often Manager.Run calls Reconcile.
const reconcileEvery = time.Minute
