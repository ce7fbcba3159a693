package hub

import (
	"strconv"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
)

// handleCTM processes a direct "connect to me" request: a peer is telling
// us it has opened protocol/port and we should dial it now.
func (c *Client) handleCTM(cmd *adc.Command) {
	if len(cmd.Params) < 3 {
		return
	}
	proto := cmd.Params[0]
	port, err := strconv.Atoi(cmd.Params[1])
	if err != nil {
		return
	}
	token := cmd.Params[2]
	if c.lis.OnCTM != nil {
		c.lis.OnCTM(c, cmd.From, proto, port, token)
	}
}

// handleRCM processes a reverse-connect request: the peer cannot reach us
// directly and is asking us to send our own CTM instead. If we too are
// unreachable this way we fall back to NAT traversal (NAT0) when both
// sides support it, and otherwise give up silently, matching what a
// passive-passive pairing must do.
func (c *Client) handleRCM(cmd *adc.Command) {
	if len(cmd.Params) < 2 {
		return
	}
	proto := cmd.Params[0]
	token := cmd.Params[1]

	if c.OurIdentity() == nil {
		return
	}

	if port := c.activePortFor(proto); port != 0 {
		out := &adc.Command{
			Type: adc.TypeDirect, Cmd: adc.FourCC{'C', 'T', 'M'},
			From: c.OurSID(), To: cmd.From,
			Params: []string{proto, strconv.Itoa(port), token},
		}
		c.send(out)
		return
	}
	if peer, ok := c.UserBySID(cmd.From); ok && peer.SupportsFeature(FeaNAT0) {
		out := &adc.Command{
			Type: adc.TypeDirect, Cmd: adc.FourCC{'N', 'A', 'T'},
			From: c.OurSID(), To: cmd.From,
			Params: []string{proto, "0", token},
		}
		c.send(out)
		return
	}
	// both sides passive and no NAT0: nothing we can do.
}

// handleNAT is the NAT0 traversal hint: the sender reports the source port
// it observed for our UDP hole-punch probe, which we use to guess the
// peer's real listening port for a reversed CTM. We reply with RNT and, at
// the same time, start our own outbound dial toward that guessed port,
// since NAT0 only works if both passive sides attempt the connection
// simultaneously.
func (c *Client) handleNAT(cmd *adc.Command) {
	if len(cmd.Params) < 3 {
		return
	}
	proto := cmd.Params[0]
	guessedPort, err := strconv.Atoi(cmd.Params[1])
	if err != nil {
		return
	}
	token := cmd.Params[2]
	out := &adc.Command{
		Type: adc.TypeDirect, Cmd: adc.FourCC{'R', 'N', 'T'},
		From: c.OurSID(), To: cmd.From,
		Params: []string{proto, strconv.Itoa(guessedPort), token},
	}
	c.send(out)
	if c.lis.OnCTM != nil {
		c.lis.OnCTM(c, cmd.From, proto, guessedPort, token)
	}
}

// handleRNT is NAT0's reply, confirming the guessed port the other side
// will dial; delivered upward as a CTM-equivalent so the connection
// manager can open the socket toward that port.
func (c *Client) handleRNT(cmd *adc.Command) {
	if len(cmd.Params) < 3 {
		return
	}
	proto := cmd.Params[0]
	port, err := strconv.Atoi(cmd.Params[1])
	if err != nil {
		return
	}
	token := cmd.Params[2]
	if c.lis.OnCTM != nil {
		c.lis.OnCTM(c, cmd.From, proto, port, token)
	}
}

// SendRCM asks the peer at sid to connect to us (RCM), used to notify a
// previously queued upload candidate once a slot frees up. token
// identifies the request on both sides so the eventual CTM/transfer can
// be matched back to it.
func (c *Client) SendRCM(sid identity.SID, proto, token string) error {
	out := &adc.Command{
		Type: adc.TypeDirect, Cmd: adc.FourCC{'R', 'C', 'M'},
		From: c.OurSID(), To: sid,
		Params: []string{proto, token},
	}
	return c.send(out)
}

func (c *Client) mutualSupports(feature string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mutualFeatures[feature]
}

// activePortFor returns the port we advertise as listening for the given
// ADC transfer protocol token, or 0 if we have none configured.
func (c *Client) activePortFor(proto string) int {
	if c.cfg.Me.TCPActiveV4 == "" && c.cfg.Me.TCPActiveV6 == "" {
		return 0
	}
	return c.cfg.TCPPort
}
