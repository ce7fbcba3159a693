package hub

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
)

// SearchPriority is a queued outgoing search's dispatch priority.
type SearchPriority int

const (
	PriorityPaused SearchPriority = iota
	PriorityPausedForce
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

// Search is one queued outgoing search request, broadcast as BSCH.
type Search struct {
	Priority SearchPriority
	Token    string
	Params   []string // pre-built AN/NO/EX/GE/LE/EQ/TY/... tokens
	Owner    string
}

// searchQueue holds outgoing searches grouped by priority and releases one
// per second, weighted toward higher priorities so that a continuous
// stream of HIGH searches doesn't starve LOW ones outright.
//
// Weight of a priority bucket is (priority rank) * (items currently queued
// at that priority); a bucket re-rolls into the selection pool on every
// tick so that bursts of single-priority traffic still interleave.
type searchQueue struct {
	mu      sync.Mutex
	buckets map[SearchPriority][]*Search
	limiter *rate.Limiter
	cancel  context.CancelFunc
	send    func(*Search)
}

func newSearchQueue() *searchQueue {
	return &searchQueue{
		buckets: make(map[SearchPriority][]*Search),
		limiter: rate.NewLimiter(rate.Every(1*time.Second), 1),
	}
}

// Enqueue appends a search to its priority bucket; a PriorityPaused search
// is dropped. Searches already queued are never replaced, whatever their
// token.
func (q *searchQueue) Enqueue(s *Search) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s.Priority <= PriorityPaused {
		return
	}
	q.buckets[s.Priority] = append(q.buckets[s.Priority], s)
}

// start begins the once-per-second release loop, rate-limited rather than
// ticker-driven so a burst of Enqueue calls never releases faster than one
// search per second; send is called on the winning search outside the
// queue's lock.
func (q *searchQueue) start(send func(*Search)) {
	q.send = send
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		for {
			if err := q.limiter.Wait(ctx); err != nil {
				return
			}
			q.releaseOne()
		}
	}()
}

func (q *searchQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *searchQueue) releaseOne() {
	q.mu.Lock()
	total := 0
	type weighted struct {
		pri    SearchPriority
		weight int
	}
	var pool []weighted
	for pri, items := range q.buckets {
		if len(items) == 0 || pri < PriorityLow {
			continue
		}
		w := int(pri) * len(items)
		pool = append(pool, weighted{pri, w})
		total += w
	}
	if total == 0 {
		q.mu.Unlock()
		return
	}
	r := rand.Intn(total)
	var chosen SearchPriority
	for _, w := range pool {
		if r < w.weight {
			chosen = w.pri
			break
		}
		r -= w.weight
	}
	items := q.buckets[chosen]
	next := items[0]
	q.buckets[chosen] = items[1:]
	q.mu.Unlock()

	if q.send != nil {
		q.send(next)
	}
}

// handleSCH processes an incoming search broadcast (we are the target,
// typically via our own client listening for other peers' BSCH so the
// share layer can answer it). The hub package itself only decodes the
// search parameters and hands them upward; matching against the share
// tree is the share/search package's job.
func (c *Client) handleSCH(cmd *adc.Command) {
	if c.lis.OnSearchRequest != nil {
		c.lis.OnSearchRequest(c, cmd.From, cmd.NamedParams())
	}
}

func (c *Client) handleRES(cmd *adc.Command) {
	if c.lis.OnSearchResult != nil {
		c.lis.OnSearchResult(c, cmd.From, cmd.NamedParams())
	}
}

// QueueSearch enqueues an outgoing search and returns its token.
func (c *Client) QueueSearch(priority SearchPriority, params []string) string {
	token := uuid.NewString()
	c.searchQ.Enqueue(&Search{Priority: priority, Token: token, Params: params})
	return token
}

// SendRES answers an inbound search, directed back at the searcher's SID.
// params carries the result's FN/SI/SL/TR tokens plus the TO token echoing
// the search that prompted it.
func (c *Client) SendRES(to identity.SID, params []string) error {
	cmd := &adc.Command{
		Type: adc.TypeDirect, Cmd: adc.FourCC{'R', 'E', 'S'},
		From: c.OurSID(), To: to,
		Params: params,
	}
	return c.send(cmd)
}

func (c *Client) startSearchDispatch() {
	c.searchQ.start(func(s *Search) {
		cmd := &adc.Command{Type: adc.TypeBroadcast, Cmd: adc.FourCC{'S', 'C', 'H'}, From: c.OurSID()}
		cmd.Params = append(cmd.Params, s.Params...)
		cmd.Params = append(cmd.Params, "TO"+s.Token)
		c.send(cmd)
	})
}
