package hub

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
)

// hbriAddress is one endpoint offered in an HBRI validation request: the
// hub asks us to prove we can be reached on the address family we did not
// already use for the hub connection, by opening a throwaway TCP
// (optionally TLS) connection and exchanging an INF/STA handshake on it.
type hbriAddress struct {
	Host    string
	Port    int
	TLS     bool
	LocalIP string // our address on the family being validated, if known
}

// hbriWorker runs at most one outstanding HBRI validation dial at a time.
// A second request preempts (cancels) whatever dial is already in flight,
// matching the "only the latest TCP request matters" behaviour real hubs
// rely on when they retry after a timeout.
type hbriWorker struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newHBRIWorker() *hbriWorker {
	return &hbriWorker{}
}

// start launches a validation dial to addr, cancelling any prior one.
// ownSID/ownCID/token are carried in the INF frame sent once the dial
// succeeds; result is reported via done, called at most once.
func (w *hbriWorker) start(addr hbriAddress, ownSID identity.SID, ownCID, token string, done func(ok bool, err error)) {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		defer cancel()
		ok, err := dialHBRI(ctx, addr, ownSID, ownCID, token)
		if done != nil {
			done(ok, err)
		}
	}()
}

func (w *hbriWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// dialHBRI opens the secondary-protocol socket, sends an INF frame
// carrying our CID and the validation token, and waits for a severity-0
// STA reply.
func dialHBRI(ctx context.Context, addr hbriAddress, ownSID identity.SID, ownCID, token string) (bool, error) {
	dialer := net.Dialer{}
	if addr.LocalIP != "" {
		if ip := net.ParseIP(addr.LocalIP); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if addr.TLS {
		tlsConn := tls.Client(conn, &tls.Config{InsecureSkipVerify: true})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return false, err
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	inf := &adc.Command{
		Type:   adc.TypeBroadcast,
		Cmd:    adc.FourCC{'I', 'N', 'F'},
		From:   ownSID,
		Params: []string{"ID" + ownCID, "TO" + token},
	}
	if _, err := conn.Write(append(inf.Encode(), '\n')); err != nil {
		return false, err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false, err
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	reply, err := adc.Decode([]byte(line))
	if err != nil {
		return false, err
	}
	st, ok := adc.ParseSTA(reply)
	if !ok {
		return false, fmt.Errorf("hbri: unexpected reply %s", reply.Cmd)
	}
	if adc.SeverityOf(st.Code) != adc.SevSuccess {
		return false, fmt.Errorf("hbri: validation failed: %s", st.Message)
	}
	return true, nil
}

// hubConnFamilyIsV6 reports whether our existing hub connection's local
// address is IPv6. HBRI always validates the opposite family.
func (c *Client) hubConnFamilyIsV6() bool {
	if c.ep == nil {
		return false
	}
	addr := c.ep.LocalAddr()
	if addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() == nil
}

// handleTCP processes a TCP HBRI validation request directed at us: the
// hub asks us to dial back on whichever address family our hub connection
// did not already establish, proving we can be reached on it.
func (c *Client) handleTCP(cmd *adc.Command) {
	if cmd.Type != adc.TypeHub || len(cmd.Params) < 3 {
		return
	}
	token, ok := cmd.NamedParam("TO")
	if !ok {
		return
	}

	me := c.cfg.Me
	v6 := !c.hubConnFamilyIsV6()
	hostKey, portKey, localIP := "I4", "P4", me.TCPActiveV4
	if v6 {
		hostKey, portKey, localIP = "I6", "P6", me.TCPActiveV6
	}
	host, ok := cmd.NamedParam(hostKey)
	if !ok {
		return
	}
	portStr, ok := cmd.NamedParam(portKey)
	if !ok {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return
	}

	addr := hbriAddress{Host: host, Port: port, TLS: c.cfg.TLS, LocalIP: localIP}
	c.hbri.start(addr, c.OurSID(), me.CID.String(), token, func(ok bool, err error) {
		sev := severity.Verbose
		msg := "HBRI validation succeeded"
		if !ok || err != nil {
			sev = severity.Warning
			msg = "HBRI validation failed"
		}
		if c.lis.OnStatus != nil {
			c.lis.OnStatus(c, sev, msg)
		}
	})
}
