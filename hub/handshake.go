package hub

import (
	"fmt"

	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
	"github.com/airdcpp-web/dcppcore/tiger"
)

// handleLine is invoked on the transport's own goroutine for every
// incoming ADC frame; frames from a single hub are delivered in
// arrival order.
func (c *Client) handleLine(text string) {
	cmd, err := adc.Decode([]byte(text))
	if err != nil {
		c.log.Logf(severity.Warning, "hub %s: bad frame %q: %v", c.cfg.URL, text, err)
		return
	}
	switch cmd.Cmd.String() {
	case "SUP":
		c.handleSUP(cmd)
	case "SID":
		c.handleSID(cmd)
	case "INF":
		c.handleINF(cmd)
	case "GPA":
		c.handleGPA(cmd)
	case "STA":
		c.handleSTA(cmd)
	case "QUI":
		c.handleQUI(cmd)
	case "MSG":
		c.handleMSG(cmd)
	case "CTM":
		c.handleCTM(cmd)
	case "RCM":
		c.handleRCM(cmd)
	case "NAT":
		c.handleNAT(cmd)
	case "RNT":
		c.handleRNT(cmd)
	case "SCH":
		c.handleSCH(cmd)
	case "RES":
		c.handleRES(cmd)
	case "TCP":
		c.handleTCP(cmd)
	default:
		c.log.Logf(severity.Verbose, "hub %s: unhandled command %s", c.cfg.URL, cmd.Cmd)
	}
}

func (c *Client) handleSUP(cmd *adc.Command) {
	if c.State() != StateProtocol {
		return
	}
	hubFeatures := extractFeatureList(cmd)
	mutual := intersect(OurFeatures, hubFeatures)
	if !hasAny(mutual, FeaBASE, FeaBAS0) {
		c.fatalProtocol(adc.CodeProtocolUnsupported, "BASE not supported")
		return
	}
	if !mutual[FeaTIGR] {
		c.fatalProtocol(adc.CodeProtocolUnsupported, "TIGR not supported")
		return
	}
	c.mu.Lock()
	c.mutualFeatures = mutual
	c.mu.Unlock()
	c.setState(StateIdentify)
}

func extractFeatureList(cmd *adc.Command) []string {
	var out []string
	for _, p := range cmd.Params {
		if len(p) >= 4 && (p[:2] == "AD" || p[:2] == "RM") {
			out = append(out, p[2:])
		}
	}
	return out
}

func (c *Client) handleSID(cmd *adc.Command) {
	if c.State() != StateIdentify || len(cmd.Params) == 0 {
		c.fatalProtocol(adc.CodeBadState, "SID in wrong state")
		return
	}
	sid, err := identity.ParseSID(cmd.Params[0])
	if err != nil {
		c.fatalProtocol(adc.CodeBadState, "invalid SID")
		return
	}
	c.mu.Lock()
	c.ourSID = sid
	user := identity.NewUser(c.cfg.Me.CID)
	c.ourIdentity = identity.NewIdentity(user, sid)
	c.mu.Unlock()
	c.sendOwnINF()
}

// sendOwnINF builds and sends our own INF, only including attributes that
// changed since the last INF we sent.
func (c *Client) sendOwnINF() {
	full := c.ownAttrs()
	c.mu.Lock()
	diff := make(map[string]string)
	for k, v := range full {
		if c.lastInfoSent[k] != v {
			diff[k] = v
		}
	}
	// on the very first INF, always send ID/PD/NI/SU regardless of diff
	if len(c.lastInfoSent) == 0 {
		for _, must := range []string{"ID", "PD", "NI", "SU", "VE", "SL"} {
			if v, ok := full[must]; ok {
				diff[must] = v
			}
		}
	}
	c.lastInfoSent = full
	ourSID := c.ourSID
	c.mu.Unlock()

	if len(diff) == 0 {
		return
	}
	cmd := &adc.Command{Type: adc.TypeBroadcast, Cmd: adc.FourCC{'I', 'N', 'F'}, From: ourSID}
	for k, v := range diff {
		cmd.Params = append(cmd.Params, k+v)
	}
	c.send(cmd)

	if c.State() == StateIdentify {
		c.setState(StateNormal)
	}
}

func (c *Client) ownAttrs() map[string]string {
	me := c.cfg.Me
	attrs := map[string]string{
		"ID": me.CID.String(),
		"PD": me.PID.String(),
		"NI": me.Nick,
		"SU": commaJoin(OurFeatures),
		"VE": me.Application + " " + me.Version,
		"SL": fmt.Sprintf("%d", me.Slots),
		"SS": fmt.Sprintf("%d", me.ShareSize),
		"SF": fmt.Sprintf("%d", me.ShareFiles),
	}
	if me.Description != "" {
		attrs["DE"] = me.Description
	}
	if me.TCPActiveV4 != "" {
		attrs["I4"] = me.TCPActiveV4
	}
	if me.TCPActiveV6 != "" {
		attrs["I6"] = me.TCPActiveV6
	}
	if me.UDPPortV4 != "" {
		attrs["U4"] = me.UDPPortV4
	}
	if me.UDPPortV6 != "" {
		attrs["U6"] = me.UDPPortV6
	}
	return attrs
}

func commaJoin(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func (c *Client) handleGPA(cmd *adc.Command) {
	// A hub may ask for a password either before we've sent our INF
	// (still IDENTIFY) or after we optimistically assumed NORMAL
	// (the optimistic "INF with no password" edge is only a client-side
	// guess); GPA always moves us into VERIFY regardless of which side
	// of that guess we were on. Only PROTOCOL/CONNECTING are truly
	// invalid — the hub hasn't even told us SID yet.
	switch c.State() {
	case StateConnecting, StateProtocol:
		c.fatalProtocol(adc.CodeBadState, "GPA before SUP/SID")
		return
	}
	if len(cmd.Params) == 0 {
		return
	}
	salt := []byte(cmd.Params[0])
	c.mu.Lock()
	c.salts = append(c.salts, salt)
	c.mu.Unlock()
	c.setState(StateVerify)

	rawSalt, err := tiger.DecodeBase32(string(salt))
	if err != nil {
		c.fatalProtocol(adc.CodeBadState, "invalid GPA salt")
		return
	}
	th := tiger.New()
	th.Write([]byte(c.cfg.Password))
	th.Write(rawSalt)
	var sum [24]byte
	copy(sum[:], th.Sum(nil))
	pas := &adc.Command{Type: adc.TypeHub, Cmd: adc.FourCC{'P', 'A', 'S'}, Params: []string{tiger.Base32(sum)}}
	c.send(pas)
}

func (c *Client) handleSTA(cmd *adc.Command) {
	st, ok := adc.ParseSTA(cmd)
	if !ok {
		return
	}
	if st.Code == adc.CodeCommandAccess {
		c.forbid("")
	}
	lvl := severity.Info
	switch adc.SeverityOf(st.Code) {
	case adc.SevRecoverable:
		lvl = severity.Warning
	case adc.SevFatal:
		lvl = severity.Error
	}
	if c.lis.OnStatus != nil {
		c.lis.OnStatus(c, lvl, st.Message)
	}
	if adc.SeverityOf(st.Code) == adc.SevFatal {
		c.onDisconnected()
	}
}

func (c *Client) handleQUI(cmd *adc.Command) {
	np := cmd.NamedParams()
	if sidStr, ok := np["ID"]; ok {
		if sid, err := identity.ParseSID(sidStr); err == nil && sid == c.OurSID() {
			c.onDisconnected()
			return
		}
	}
	if len(cmd.Params) > 0 {
		if sid, err := identity.ParseSID(cmd.Params[0]); err == nil {
			c.removeUser(sid)
		}
	}
}

func (c *Client) handleMSG(cmd *adc.Command) {
	if len(cmd.Params) == 0 {
		return
	}
	c.messages.add(cmd.From, cmd.Params[0])
	if c.lis.OnMessage != nil {
		c.lis.OnMessage(c, cmd.From, cmd.Params[0])
	}
}
