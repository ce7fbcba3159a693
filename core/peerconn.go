package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
	"github.com/airdcpp-web/dcppcore/transport"
	"github.com/airdcpp-web/dcppcore/upload"
)

// PeerConn is the peer-to-peer side of one client-client connection: it
// decodes incoming ADC TypeClient frames, dispatches GET to an
// upload.Manager, and implements upload.Source so the manager can stream
// bytes and errors back without knowing anything about ADC framing. This
// is the concrete wiring upload.Source's doc comment promises ("hub/
// connect and transport supply the concrete implementation").
type PeerConn struct {
	ep  *transport.Endpoint
	log *severity.Logger

	cid       identity.CID
	profile   string
	op        bool
	mcn       bool
	minislots bool

	mu      sync.Mutex
	pending pendingGet
}

// pendingGet is the in-flight request's header fields, remembered between
// parsing the GET line and Start being called once the transfer has been
// classified, so Start can emit the matching SND header.
type pendingGet struct {
	transferType string
	path         string
	start        int64
}

// NewPeerConn builds an upload.Source. ep may be nil if the underlying
// transport.Endpoint doesn't exist yet (the active side needs a PeerConn
// to close over before it can build the Endpoint's Callbacks); call
// SetEndpoint once it does. cid, op, mcn and minislots describe what the
// other side told us about itself during the hub-mediated handshake that
// led to this connection (INF attributes CO/OP/SO, or the peer
// connection's own INF exchange); for the passive side cid is learned
// later from the connection itself and is set with SetCID. profile is the
// share profile this peer is visible under on the hub that brokered the
// connection.
func NewPeerConn(ep *transport.Endpoint, log *severity.Logger, cid identity.CID, profile string, op, mcn, minislots bool) *PeerConn {
	if log == nil {
		log = severity.New(nil)
	}
	return &PeerConn{ep: ep, log: log, cid: cid, profile: profile, op: op, mcn: mcn, minislots: minislots}
}

// SetEndpoint attaches the transport.Endpoint once it exists, for the
// active-dial case where the Endpoint's Callbacks must close over this
// PeerConn before Connect can be called.
func (p *PeerConn) SetEndpoint(ep *transport.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ep = ep
}

// SetCID records the peer's CID once it's learned from the connection's
// own INF exchange, for the passive (accepted) side where no prior
// CTM/RCM context supplied it up front.
func (p *PeerConn) SetCID(cid identity.CID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cid = cid
}

func (p *PeerConn) CID() identity.CID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cid
}
func (p *PeerConn) IsMCN() bool             { return p.mcn }
func (p *PeerConn) SupportsMinislots() bool { return p.minislots }
func (p *PeerConn) IsOp() bool              { return p.op }

func (p *PeerConn) endpoint() *transport.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ep
}

// SendError implements upload.Source by emitting an ADC STA line over the
// peer connection.
func (p *PeerConn) SendError(code int, msg string) {
	p.endpoint().WriteLine(adc.NewSTA(code, msg).Encode())
}

// Start implements upload.Source: it emits the SND header line the ADC
// protocol requires before any payload bytes, using the request fields
// HandleLine stashed when it parsed the GET.
func (p *PeerConn) Start(totalBytes int64) {
	p.mu.Lock()
	pg := p.pending
	p.mu.Unlock()
	cmd := &adc.Command{
		Type: adc.TypeClient,
		Cmd:  adc.FourCC{'S', 'N', 'D'},
		Params: []string{
			pg.transferType,
			pg.path,
			strconv.FormatInt(pg.start, 10),
			strconv.FormatInt(totalBytes, 10),
		},
	}
	p.endpoint().WriteLine(cmd.Encode())
}

// Write implements upload.Source by streaming raw payload bytes, no
// framing, matching BINARY mode.
func (p *PeerConn) Write(b []byte) (int, error) {
	return p.endpoint().WriteBytes(b)
}

// HandleLine processes one decoded line from the peer connection. INF
// records the peer's CID; GET is dispatched to mgr on its own goroutine
// since HandleGet blocks for the whole transfer; any other command is
// logged and ignored.
func (p *PeerConn) HandleLine(text string, mgr *upload.Manager) {
	cmd, err := adc.Decode([]byte(text))
	if err != nil {
		p.log.Logf(severity.Warning, "peer %s: malformed line: %v", p.CID(), err)
		return
	}
	switch cmd.Cmd.String() {
	case "INF":
		p.handleINF(cmd)
	case "GET":
		p.handleGET(cmd, mgr)
	default:
		p.log.Logf(severity.Verbose, "peer %s: unhandled command %s", p.CID(), cmd.Cmd.String())
	}
}

// handleINF learns the peer's CID on the passive side of a connection,
// where SetCID wasn't already called from CTM/RCM context.
func (p *PeerConn) handleINF(cmd *adc.Command) {
	id, ok := cmd.NamedParam("ID")
	if !ok {
		return
	}
	cid, err := identity.ParseCID(id)
	if err != nil {
		return
	}
	p.SetCID(cid)
}

func (p *PeerConn) handleGET(cmd *adc.Command, mgr *upload.Manager) {
	req, transferType, err := parseGET(cmd)
	if err != nil {
		p.SendError(adcBadProtocolState, err.Error())
		return
	}

	req.Profile = p.profile

	p.mu.Lock()
	p.pending = pendingGet{transferType: transferType, path: req.Path, start: req.StartPos}
	p.mu.Unlock()

	go func() {
		if err := mgr.HandleGet(context.Background(), p, req); err != nil {
			p.log.Logf(severity.Info, "peer %s: GET %s failed: %v", p.CID(), req.Path, err)
		}
	}()
}

// parseGET decodes a GET command's four positional parameters
// (transfer type, path, start position, byte count) into an
// upload.Request. Covers the "file", "tthl" and "list" transfer types
// named in the wire-interface's core-command list; "tree"/partial-chunk
// requests are reached only through the upload package's own API (queue
// re-GETs of an already-open connection), not through a fresh type token.
func parseGET(cmd *adc.Command) (upload.Request, string, error) {
	if len(cmd.Params) < 4 {
		return upload.Request{}, "", fmt.Errorf("core: GET needs 4 parameters, got %d", len(cmd.Params))
	}
	transferType := cmd.Params[0]
	path := cmd.Params[1]
	start, err := strconv.ParseInt(cmd.Params[2], 10, 64)
	if err != nil {
		return upload.Request{}, "", fmt.Errorf("core: GET start position: %w", err)
	}
	count, err := strconv.ParseInt(cmd.Params[3], 10, 64)
	if err != nil {
		return upload.Request{}, "", fmt.Errorf("core: GET byte count: %w", err)
	}

	var kind upload.Kind
	switch transferType {
	case "file":
		kind = upload.KindFile
	case "tthl":
		kind = upload.KindTTHList
	case "list":
		kind = upload.KindFileList
	default:
		return upload.Request{}, "", fmt.Errorf("core: unsupported GET type %q", transferType)
	}

	return upload.Request{
		Kind:      kind,
		Path:      path,
		StartPos:  start,
		Bytes:     count,
		Resumable: count >= 0,
	}, transferType, nil
}

const adcBadProtocolState = 127
