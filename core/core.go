// Package core is the composition root: it builds one owning instance of
// every other package (identity is implicit, share/refresh/upload/hub/
// registry are explicit) and wires them together the way the singleton
// managers used to reach each other directly. Startup brings components
// up in dependency order; Close tears them down in the reverse order.
package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/airdcpp-web/dcppcore/config"
	"github.com/airdcpp-web/dcppcore/hub"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
	"github.com/airdcpp-web/dcppcore/refresh"
	"github.com/airdcpp-web/dcppcore/registry"
	"github.com/airdcpp-web/dcppcore/search"
	"github.com/airdcpp-web/dcppcore/share"
	"github.com/airdcpp-web/dcppcore/transport"
	"github.com/airdcpp-web/dcppcore/upload"
)

// maxConcurrentHashes bounds the refresh worker's per-task hashing
// fan-out; unrelated to upload slot counts.
const maxConcurrentHashes = 4

// Core owns every long-lived component. Build one with New, bring it up
// with Start, and release it with Close.
type Core struct {
	cfg *config.Config
	log *severity.Logger

	tree  *share.Tree
	hash  hashStore
	asher *fileHasher

	refreshQueue *refresh.Queue
	worker       *refresh.Worker

	scheduler *upload.Scheduler
	uploads   *upload.Manager

	reg *registry.Registry

	listener net.Listener

	mu        sync.Mutex
	clients   map[string]*hub.Client
	peerConns map[identity.CID]int

	workerCancel  context.CancelFunc
	uploadsCancel context.CancelFunc
}

// New builds every component from cfg but starts nothing running yet; call
// Start to bring the refresh worker, upload ticker, hub connections and
// peer listener up.
func New(cfg *config.Config, log *severity.Logger) (*Core, error) {
	if log == nil {
		log = severity.New(nil)
	}

	store, err := openHashStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("core: opening hash store: %w", err)
	}

	tree := share.NewTree()
	for _, root := range cfg.BuildShareRoots(tree) {
		tree.AddRoot(root)
	}

	validator, err := config.SkiplistValidator(cfg.SkiplistPatterns)
	if err != nil {
		store.Close()
		return nil, err
	}

	asher := &fileHasher{store: store}
	builder := &refresh.ShareBuilder{Validator: validator, Hashes: store}
	queue := refresh.NewQueue()
	worker := &refresh.Worker{
		Queue:               queue,
		Tree:                tree,
		Builder:             builder,
		Hasher:              asher,
		MaxConcurrentHashes: maxConcurrentHashes,
	}

	scheduler := upload.NewScheduler(cfg.UploadLimits(func() bool { return false }))
	uploads := upload.NewManager(tree, scheduler, nil, cfg.CID.String(), openRealFile)

	c := &Core{
		cfg:          cfg,
		log:          log,
		tree:         tree,
		hash:         store,
		asher:        asher,
		refreshQueue: queue,
		worker:       worker,
		scheduler:    scheduler,
		uploads:      uploads,
		reg:          registry.New(),
		clients:      make(map[string]*hub.Client),
		peerConns:    make(map[identity.CID]int),
	}
	uploads.Notifier().SetDialFunc(c.dialBack)
	return c, nil
}

// openHashStore selects the embedded backing store per
// Config.HashStoreBackend.
func openHashStore(cfg *config.Config) (hashStore, error) {
	switch cfg.HashStoreBackend {
	case "", "leveldb":
		return OpenLevelHashStore(filepath.Join(cfg.DataDir, "hashdb"))
	case "sqlite":
		return OpenSqliteHashStore(filepath.Join(cfg.DataDir, "hashdb.sqlite"))
	default:
		return nil, fmt.Errorf("core: unknown hashStoreBackend %q", cfg.HashStoreBackend)
	}
}

func openRealFile(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}

// Start brings every running component up, in the fixed order: refresh
// worker first (so the share tree is populated before anything can be
// asked about it), then the upload ticker, then the peer listener, then
// the configured hubs last (so by the time a hub sees us we can already
// answer GET and SCH). The initial share build is enqueued and awaited
// synchronously before returning, so Start's caller sees a populated tree.
func (c *Core) Start(ctx context.Context) error {
	workerCtx, workerCancel := context.WithCancel(ctx)
	c.workerCancel = workerCancel
	go c.worker.Run(workerCtx)

	uploadsCtx, uploadsCancel := context.WithCancel(ctx)
	c.uploadsCancel = uploadsCancel
	go c.uploads.Run(uploadsCtx, c.liveUploaders)

	var startupPaths []string
	for _, root := range c.tree.Roots() {
		startupPaths = append(startupPaths, root.RealPath)
	}
	task, done := refresh.NewBlockingTask(refresh.Startup, startupPaths)
	c.refreshQueue.Enqueue(task)
	if err := <-done; err != nil {
		c.log.Logf(severity.Warning, "core: initial share build: %v", err)
	} else {
		c.logShareSummary()
	}

	if c.cfg.Me.TCPPort != 0 {
		if err := c.startPeerListener(); err != nil {
			return fmt.Errorf("core: peer listener: %w", err)
		}
	}

	for _, hc := range c.cfg.Hubs {
		if err := c.connectHub(ctx, hc); err != nil {
			c.log.Logf(severity.Warning, "core: hub %s: %v", hc.URL, err)
		}
	}

	return nil
}

// logShareSummary reports the freshly built tree's size in a human byte
// count, the one place this core logs a size instead of a raw integer.
func (c *Core) logShareSummary() {
	var size int64
	var files int
	for _, root := range c.tree.Roots() {
		if d, ok := c.tree.TopDirectory(root.RealPath); ok {
			size += d.Size()
			files += countFiles(d)
		}
	}
	c.log.Logf(severity.Info, "core: share ready: %s across %d files", humanize.Bytes(uint64(size)), files)
}

func countFiles(d *share.Directory) int {
	n := len(d.Files)
	for _, sub := range d.Dirs {
		n += countFiles(sub)
	}
	return n
}

// Close tears every running component down in exactly the reverse of
// Start's order: hubs first, then the peer listener, then the upload
// ticker, then the refresh worker, then the hash store.
func (c *Core) Close() error {
	c.mu.Lock()
	clients := make([]*hub.Client, 0, len(c.clients))
	for _, cl := range c.clients {
		clients = append(clients, cl)
	}
	c.mu.Unlock()
	for _, cl := range clients {
		cl.Disconnect()
	}

	if c.listener != nil {
		c.listener.Close()
	}

	if c.uploadsCancel != nil {
		c.uploadsCancel()
	}
	if c.workerCancel != nil {
		c.workerCancel()
	}

	return c.hash.Close()
}

// connectHub builds and connects one configured hub, wiring its Listener
// into the registry, the upload notifier, and the search matcher.
func (c *Core) connectHub(ctx context.Context, hc config.HubConfig) error {
	var size int64
	var files int
	for _, root := range c.tree.Roots() {
		if d, ok := c.tree.TopDirectory(root.RealPath); ok {
			size += d.Size()
			files += countFiles(d)
		}
	}

	client := hub.New(c.cfg.HubClientConfig(hc, size, files), hub.Listener{
		OnStateChanged: func(cl *hub.Client, s hub.State) {
			c.log.Logf(severity.Verbose, "hub %s: state -> %v", hc.URL, s)
		},
		OnUserJoined:  func(cl *hub.Client, ou *identity.OnlineUser) { c.reg.NoteUserJoined(cl, ou) },
		OnUserUpdated: func(cl *hub.Client, ou *identity.OnlineUser, changed []string) { c.reg.NoteUserJoined(cl, ou) },
		OnUserParted: func(cl *hub.Client, ou *identity.OnlineUser) {
			c.reg.NoteUserParted(cl, ou.User().CID())
		},
		OnStatus: func(cl *hub.Client, sev severity.Level, msg string) { c.log.Logf(sev, "hub %s: %s", hc.URL, msg) },
		OnCTM:    func(cl *hub.Client, from identity.SID, proto string, port int, token string) { c.handleCTM(cl, from, proto, port, token) },
		OnSearchRequest: func(cl *hub.Client, from identity.SID, params map[string]string) {
			c.handleSearchRequest(cl, from, params)
		},
		OnSearchResult: func(cl *hub.Client, from identity.SID, params map[string]string) {
			c.log.Logf(severity.Verbose, "hub %s: search result from %s: %v", hc.URL, from, params)
		},
	}, c.log)

	c.mu.Lock()
	c.clients[hc.URL] = client
	c.mu.Unlock()
	c.reg.AddClient(hc.URL, client)

	return client.Connect(ctx)
}

// handleSearchRequest answers an inbound BSCH/FSCH: it matches the query
// against the share tree and sends one RES back to the searcher per hit,
// each carrying the result's FN/SI/SL tokens (plus TR for a file) and the
// TO token copied from the request so the searcher can match replies to
// the search that produced them.
func (c *Core) handleSearchRequest(cl *hub.Client, from identity.SID, params map[string]string) {
	q := search.ParseADC(namedParamsToList(params), 0)
	results := search.Match(c.tree, "", q)
	c.log.Logf(severity.Verbose, "hub: search from %s matched %d entries", from, len(results))

	token := params["TO"]
	slots := strconv.Itoa(c.scheduler.FreeSlots())
	for _, r := range results {
		resParams := []string{"SL" + slots}
		switch {
		case r.File != nil:
			resParams = append(resParams,
				"FN"+r.File.VirtualPath(),
				"SI"+strconv.FormatInt(r.File.Size, 10),
				"TR"+r.File.TTH.String(),
			)
		case r.Dir != nil:
			resParams = append(resParams,
				"FN"+r.Dir.VirtualPath(),
				"SI"+strconv.FormatInt(r.Dir.Size(), 10),
			)
		default:
			continue
		}
		if token != "" {
			resParams = append(resParams, "TO"+token)
		}
		if err := cl.SendRES(from, resParams); err != nil {
			c.log.Logf(severity.Warning, "hub: sending RES to %s: %v", from, err)
			return
		}
	}
}

func namedParamsToList(np map[string]string) []string {
	out := make([]string, 0, len(np))
	for k, v := range np {
		out = append(out, k+v)
	}
	return out
}

// handleCTM dials the peer that asked us to connect, resolving its
// advertised active address from the identity the hub already tracks for
// its SID.
func (c *Core) handleCTM(cl *hub.Client, from identity.SID, proto string, port int, token string) {
	ou, ok := cl.UserBySID(from)
	if !ok {
		return
	}
	addr := ou.Get("I4")
	if addr == "" {
		addr = ou.Get("I6")
	}
	if addr == "" {
		c.log.Logf(severity.Warning, "core: CTM from %s with no advertised address", from)
		return
	}
	go c.dialPeer(addr, port, proto, ou.User().CID())
}

// dialPeer opens the active side of a peer connection and wires it as an
// upload.Source.
func (c *Core) dialPeer(addr string, port int, proto string, cid identity.CID) {
	pc := NewPeerConn(nil, c.log, cid, "", false, false, true)
	ep := transport.NewEndpoint(transport.Callbacks{
		Line: func(text string) { pc.HandleLine(text, c.uploads) },
		Failed: func(err error) {
			c.log.Logf(severity.Info, "peer %s: connection failed: %v", cid, err)
			c.trackPeerConn(cid, -1)
		},
	})
	pc.SetEndpoint(ep)
	c.trackPeerConn(cid, 1)
	if err := ep.Connect(context.Background(), addr, port, transport.ConnectOptions{
		TLS: strings.HasPrefix(proto, "ADCS"),
	}); err != nil {
		c.log.Logf(severity.Info, "peer %s: dial %s:%d failed: %v", cid, addr, port, err)
		c.trackPeerConn(cid, -1)
	}
}

// startPeerListener opens the passive incoming-connection socket. Each
// accepted connection is wrapped as a PeerConn whose CID is learned from
// the peer's own identifying line rather than known up front, since we
// have no CTM/RCM context for a connection somebody else initiated toward
// us.
func (c *Core) startPeerListener() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.Me.TCPPort))
	if err != nil {
		return err
	}
	c.listener = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go c.acceptPeer(conn)
		}
	}()
	return nil
}

func (c *Core) acceptPeer(conn net.Conn) {
	pc := NewPeerConn(nil, c.log, identity.CID{}, "", false, false, true)
	ep := transport.NewFromConn(transport.Callbacks{
		Line: func(text string) { pc.HandleLine(text, c.uploads) },
		Failed: func(err error) {
			if cid := pc.CID(); !cid.IsZero() {
				c.trackPeerConn(cid, -1)
			}
		},
	}, conn)
	pc.SetEndpoint(ep)
}

// dialBack is the upload notifier's hook, called once a slot frees up for
// a CID that was waiting: it asks whichever hub the peer shares with us on
// to send an RCM, so the peer reconnects and re-issues its GET.
func (c *Core) dialBack(cid identity.CID) {
	cl, ou, ok := c.reg.ClientForCID(cid)
	if !ok {
		return
	}
	if err := cl.SendRCM(ou.SID(), hub.ProtoADC, cid.String()); err != nil {
		c.log.Logf(severity.Info, "core: RCM to %s failed: %v", cid, err)
	}
}

// liveUploaders snapshots the active peer-connection count per CID, for
// the upload scheduler's once-a-minute reconciliation against MCN slot
// counters: those counters are a monotonic hint that can transiently
// over-report, reconciled here rather than trusted between ticks.
func (c *Core) liveUploaders() map[identity.CID]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[identity.CID]int, len(c.peerConns))
	for cid, n := range c.peerConns {
		if n > 0 {
			out[cid] = n
		}
	}
	return out
}

func (c *Core) trackPeerConn(cid identity.CID, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerConns[cid] += delta
	if c.peerConns[cid] <= 0 {
		delete(c.peerConns, cid)
	}
}
