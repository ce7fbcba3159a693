package hub

import (
	"bufio"
	"net"
	"testing"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
	"github.com/airdcpp-web/dcppcore/tiger"
	"github.com/airdcpp-web/dcppcore/transport"
)

func newTestClient() *Client {
	pid, _ := identity.NewPID()
	cid := identity.CIDFromPID(pid)
	return New(Config{
		URL: "adc://test",
		Me:  OwnInfo{CID: cid, PID: pid, Nick: "me", Application: "dcppcore", Version: "0.1"},
	}, Listener{}, nil)
}

func sid(s string) identity.SID {
	id, err := identity.ParseSID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestStateTransitions(t *testing.T) {
	if !StateIdentify.canTransitionTo(StateNormal) {
		t.Fatal("IDENTIFY should allow the optimistic INF(no pass) edge to NORMAL")
	}
	if !StateNormal.canTransitionTo(StateVerify) {
		t.Fatal("NORMAL must allow a late GPA to move to VERIFY")
	}
	if StateProtocol.canTransitionTo(StateNormal) {
		t.Fatal("PROTOCOL must not jump straight to NORMAL")
	}
}

func TestHandleINFAddsUser(t *testing.T) {
	c := newTestClient()
	c.ourSID = sid("AAAA")
	other := sid("AAAB")
	var joined *identity.OnlineUser
	c.lis.OnUserJoined = func(_ *Client, ou *identity.OnlineUser) { joined = ou }

	cmd, err := adc.Decode([]byte("BINF AAAB ID46P3V4JZ7LQ42UJHZ2EAMY5LP6OSBI6TGZ6G7A NIbob"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c.handleINF(cmd)

	if joined == nil {
		t.Fatal("expected OnUserJoined to fire")
	}
	if _, ok := c.UserBySID(other); !ok {
		t.Fatal("expected user to be registered under its SID")
	}
}

func TestHandleINFDuplicateCIDDropped(t *testing.T) {
	c := newTestClient()
	c.ourSID = sid("AAAA")

	first, _ := adc.Decode([]byte("BINF AAAB ID46P3V4JZ7LQ42UJHZ2EAMY5LP6OSBI6TGZ6G7A NIbob"))
	c.handleINF(first)

	var flagged bool
	c.lis.OnStatus = func(_ *Client, _ severity.Level, _ string) { flagged = true }

	second, _ := adc.Decode([]byte("BINF AAAC ID46P3V4JZ7LQ42UJHZ2EAMY5LP6OSBI6TGZ6G7A NIbobclone"))
	c.handleINF(second)

	if _, ok := c.UserBySID(sid("AAAC")); ok {
		t.Fatal("duplicate CID under a new SID must not be registered")
	}
	if u, ok := c.UserBySID(sid("AAAB")); !ok || u.Nick() != "bob" {
		t.Fatal("original SID entry must remain unchanged")
	}
	if !flagged {
		t.Fatal("expected a status callback on the duplicate-CID case")
	}
}

func TestRemoveUser(t *testing.T) {
	c := newTestClient()
	c.ourSID = sid("AAAA")
	cmd, _ := adc.Decode([]byte("BINF AAAB ID46P3V4JZ7LQ42UJHZ2EAMY5LP6OSBI6TGZ6G7A NIbob"))
	c.handleINF(cmd)

	var parted bool
	c.lis.OnUserParted = func(_ *Client, _ *identity.OnlineUser) { parted = true }
	c.removeUser(sid("AAAB"))

	if !parted {
		t.Fatal("expected OnUserParted to fire")
	}
	if _, ok := c.UserBySID(sid("AAAB")); ok {
		t.Fatal("user must be removed from the SID table")
	}
}

func TestSearchQueueReleasesQueuedSearches(t *testing.T) {
	q := newSearchQueue()
	q.Enqueue(&Search{Priority: PriorityLow, Token: "low"})
	q.Enqueue(&Search{Priority: PriorityHighest, Token: "high"})

	seen := make(map[string]bool)
	q.send = func(s *Search) { seen[s.Token] = true }
	q.releaseOne()
	q.releaseOne()

	if !seen["low"] || !seen["high"] {
		t.Fatalf("expected both searches to eventually release, got %v", seen)
	}
}

func TestHandleGPAHashesWithTiger(t *testing.T) {
	c := newTestClient()
	c.cfg.Password = "secret"
	c.setState(StateIdentify)

	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()
	c.ep = transport.NewFromConn(transport.Callbacks{}, local)

	saltRaw := []byte("0123456789abcdef01234567")
	saltB32 := tiger.Base32([24]byte(saltRaw))

	line := make(chan string, 1)
	go func() {
		r := bufio.NewReader(remote)
		text, _ := r.ReadString('\n')
		line <- text
	}()

	cmd, err := adc.Decode([]byte("IGPA " + saltB32))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c.handleGPA(cmd)

	if c.State() != StateVerify {
		t.Fatalf("expected state VERIFY after GPA, got %v", c.State())
	}

	th := tiger.New()
	th.Write([]byte("secret"))
	th.Write(saltRaw)
	var want [24]byte
	copy(want[:], th.Sum(nil))

	got := <-line
	pas, err := adc.Decode([]byte(got))
	if err != nil {
		t.Fatalf("decode sent line %q: %v", got, err)
	}
	if pas.Cmd.String() != "PAS" || len(pas.Params) != 1 {
		t.Fatalf("expected a single-param PAS command, got %v", pas)
	}
	if pas.Params[0] != tiger.Base32(want) {
		t.Fatalf("expected PAS %s, got %s", tiger.Base32(want), pas.Params[0])
	}
}

func TestHandleSCHFiresOnSearchRequestNotResult(t *testing.T) {
	c := newTestClient()
	var requested, resulted bool
	c.lis.OnSearchRequest = func(_ *Client, _ identity.SID, _ map[string]string) { requested = true }
	c.lis.OnSearchResult = func(_ *Client, _ identity.SID, _ map[string]string) { resulted = true }

	cmd, err := adc.Decode([]byte("BSCH AAAB ANfoo"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c.handleSCH(cmd)

	if !requested {
		t.Fatal("expected an inbound SCH to fire OnSearchRequest")
	}
	if resulted {
		t.Fatal("an inbound SCH must never fire OnSearchResult")
	}
}

func TestHandleRESFiresOnSearchResultNotRequest(t *testing.T) {
	c := newTestClient()
	var requested, resulted bool
	c.lis.OnSearchRequest = func(_ *Client, _ identity.SID, _ map[string]string) { requested = true }
	c.lis.OnSearchResult = func(_ *Client, _ identity.SID, _ map[string]string) { resulted = true }

	cmd, err := adc.Decode([]byte("BRES AAAB FNfoo SI1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c.handleRES(cmd)

	if !resulted {
		t.Fatal("expected an inbound RES to fire OnSearchResult")
	}
	if requested {
		t.Fatal("an inbound RES must never fire OnSearchRequest")
	}
}

func TestSendRCMWritesAnRCMLine(t *testing.T) {
	c := newTestClient()
	c.ourSID = sid("AAAA")

	clientConn, remote := net.Pipe()
	defer clientConn.Close()
	defer remote.Close()
	c.ep = transport.NewFromConn(transport.Callbacks{}, clientConn)

	line := make(chan string, 1)
	go func() {
		r := bufio.NewReader(remote)
		text, _ := r.ReadString('\n')
		line <- text
	}()

	if err := c.SendRCM(sid("AAAB"), ProtoADC, "tok123"); err != nil {
		t.Fatalf("SendRCM: %v", err)
	}

	got := <-line
	cmd, err := adc.Decode([]byte(got))
	if err != nil {
		t.Fatalf("decode sent line %q: %v", got, err)
	}
	if cmd.Cmd.String() != "RCM" {
		t.Fatalf("expected an RCM command, got %s", cmd.Cmd.String())
	}
	if cmd.To != sid("AAAB") {
		t.Fatalf("expected To=AAAB, got %v", cmd.To)
	}
	if len(cmd.Params) != 2 || cmd.Params[0] != ProtoADC || cmd.Params[1] != "tok123" {
		t.Fatalf("expected params [%s tok123], got %v", ProtoADC, cmd.Params)
	}
}

func TestSearchQueueIgnoresPaused(t *testing.T) {
	q := newSearchQueue()
	q.Enqueue(&Search{Priority: PriorityPaused, Token: "paused"})

	released := false
	q.send = func(*Search) { released = true }
	q.releaseOne()

	if released {
		t.Fatal("a paused search must never be released")
	}
}
