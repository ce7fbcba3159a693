package hub

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
	"github.com/airdcpp-web/dcppcore/transport"
)

// OwnInfo supplies the identity parameters the Client advertises to a hub
// (ID, PD, NI, SU, version, share size/files, slot count,
// connect modes).
type OwnInfo struct {
	CID          identity.CID
	PID          identity.PID
	Nick         string
	Description  string
	Application  string
	Version      string
	ShareSize    int64
	ShareFiles   int
	Slots        int
	TCPActiveV4  string // non-empty => I4 present (active)
	TCPActiveV6  string
	UDPPortV4    string
	UDPPortV6    string
}

// Config configures one hub connection.
type Config struct {
	URL            string
	Host           string
	Port           int
	TLS            bool
	AllowUntrusted bool
	Keyprint       []byte
	Password       string
	AutoReconnect  bool
	TCPPort        int
	Me             OwnInfo
}

// Listener receives hub client events relevant to the rest of the core
// (registry broadcasts, the share/upload layer's need to know our own
// identity, etc). All methods are optional.
type Listener struct {
	OnStateChanged  func(c *Client, s State)
	OnUserJoined    func(c *Client, ou *identity.OnlineUser)
	OnUserUpdated   func(c *Client, ou *identity.OnlineUser, changed []string)
	OnUserParted    func(c *Client, ou *identity.OnlineUser)
	OnMessage       func(c *Client, from identity.SID, text string)
	OnCTM           func(c *Client, from identity.SID, proto string, port int, token string)
	// OnSearchRequest fires for an inbound BSCH/FSCH we are asked to
	// answer; OnSearchResult fires for a RES reply to one of our own
	// QueueSearch calls.
	OnSearchRequest func(c *Client, from identity.SID, params map[string]string)
	OnSearchResult  func(c *Client, from identity.SID, params map[string]string)
	OnStatus        func(c *Client, sev severity.Level, msg string)
}

// Client is one ADC hub session.
type Client struct {
	cfg Config
	lis Listener
	log *severity.Logger

	ep *transport.Endpoint

	mu             sync.RWMutex
	state          State
	ourSID         identity.SID
	ourIdentity    *identity.Identity
	hubIdentity    *identity.Identity
	usersBySID     map[identity.SID]*identity.OnlineUser
	usersByCID     map[identity.CID]*identity.OnlineUser
	lastInfoSent   map[string]string
	forbidden      map[string]bool // FourCC -> forbidden after COMMAND_ACCESS
	salts          [][]byte
	mutualFeatures map[string]bool

	messages *messageCache

	searchQ *searchQueue

	hbri *hbriWorker

	reconnectDelay time.Duration
	cancel         context.CancelFunc
}

const defaultReconnectDelay = 120 * time.Second

// New constructs a Client in the disconnected state. Call Connect to dial.
func New(cfg Config, lis Listener, log *severity.Logger) *Client {
	if log == nil {
		log = severity.New(nil)
	}
	c := &Client{
		cfg:            cfg,
		lis:            lis,
		log:            log,
		state:          StateConnecting,
		usersBySID:     make(map[identity.SID]*identity.OnlineUser),
		usersByCID:     make(map[identity.CID]*identity.OnlineUser),
		lastInfoSent:   make(map[string]string),
		forbidden:      make(map[string]bool),
		messages:       newMessageCache(100),
		searchQ:        newSearchQueue(),
		hbri:           newHBRIWorker(),
		reconnectDelay: defaultReconnectDelay,
	}
	return c
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	old := c.state
	if !old.canTransitionTo(s) && s != StateDisconnected {
		c.mu.Unlock()
		c.log.Logf(severity.Warning, "hub %s: invalid transition %s -> %s", c.cfg.URL, old, s)
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.lis.OnStateChanged != nil {
		c.lis.OnStateChanged(c, s)
	}
}

// OurSID returns our assigned session ID. Zero until the hub's SID
// command assigns it.
func (c *Client) OurSID() identity.SID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ourSID
}

// Connect dials the hub and drives the handshake asynchronously, exactly
// one worker goroutine per connection.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.ep = transport.NewEndpoint(transport.Callbacks{
		Line: func(text string) { c.handleLine(text) },
		Failed: func(err error) {
			c.log.Logf(severity.Warning, "hub %s: transport failed: %v", c.cfg.URL, err)
			c.onDisconnected()
		},
	})
	c.setState(StateProtocol)
	if err := c.ep.Connect(ctx, c.cfg.Host, c.cfg.Port, transport.ConnectOptions{
		TLS:            c.cfg.TLS,
		AllowUntrusted: c.cfg.AllowUntrusted,
		Keyprint:       c.cfg.Keyprint,
		DialTimeout:    15 * time.Second,
	}); err != nil {
		c.onDisconnected()
		return err
	}
	c.startSearchDispatch()
	return c.sendSUP()
}

func (c *Client) sendSUP() error {
	cmd := &adc.Command{
		Type: adc.TypeHub,
		Cmd:  adc.FourCC{'S', 'U', 'P'},
	}
	for _, f := range OurFeatures {
		cmd.Params = append(cmd.Params, "AD"+f)
	}
	return c.send(cmd)
}

func (c *Client) send(cmd *adc.Command) error {
	return c.ep.WriteLine(cmd.Encode())
}

func (c *Client) onDisconnected() {
	c.setState(StateDisconnected)
	c.mu.Lock()
	users := make([]*identity.OnlineUser, 0, len(c.usersBySID))
	for _, u := range c.usersBySID {
		users = append(users, u)
	}
	c.usersBySID = make(map[identity.SID]*identity.OnlineUser)
	c.usersByCID = make(map[identity.CID]*identity.OnlineUser)
	c.mu.Unlock()
	for _, u := range users {
		if c.lis.OnUserParted != nil {
			c.lis.OnUserParted(c, u)
		}
	}
	if c.hbri != nil {
		c.hbri.stop()
	}
	if c.cfg.AutoReconnect {
		delay := c.reconnectDelay + time.Duration(rand.Int63n(int64(60*time.Second)))
		time.AfterFunc(delay, func() {
			_ = c.Connect(context.Background())
		})
	}
}

// Disconnect tears down the hub connection. Any HBRI validation is
// cancelled first (without waiting for it to finish), then the socket is
// closed.
func (c *Client) Disconnect() error {
	if c.hbri != nil {
		c.hbri.stop()
	}
	c.searchQ.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	if c.ep != nil {
		return c.ep.Disconnect(true)
	}
	return nil
}

// fatalProtocol sends STA with the given code/message and disconnects, as
// required whenever base/tiger feature negotiation fails.
func (c *Client) fatalProtocol(code int, msg string) {
	c.send(adc.NewSTA(code, msg))
	c.log.Logf(severity.Error, "hub %s: fatal protocol error: %s", c.cfg.URL, msg)
	c.onDisconnected()
}

// forbid records that the hub rejected a command with COMMAND_ACCESS.
func (c *Client) forbid(fourcc string) {
	c.mu.Lock()
	c.forbidden[fourcc] = true
	c.mu.Unlock()
}

func (c *Client) isForbidden(fourcc string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forbidden[fourcc]
}
