package hub

import (
	"github.com/airdcpp-web/dcppcore/adc"
	"github.com/airdcpp-web/dcppcore/identity"
	"github.com/airdcpp-web/dcppcore/internal/severity"
)

// handleINF processes an INF for any SID, including our own echoed back
// by the hub and other users. Detects the same-CID-different-SID case
// a buggy hub can produce, keeping the invariant that no two SID table
// entries share a CID/SID pair.
func (c *Client) handleINF(cmd *adc.Command) {
	if cmd.From.IsZero() {
		return
	}
	if cmd.From == c.OurSID() {
		c.applyOwnINFEcho(cmd)
		return
	}

	np := cmd.NamedParams()
	cidStr, hasID := np["ID"]

	c.mu.Lock()
	existing, known := c.usersBySID[cmd.From]
	if known {
		changed := existing.SetAll(np)
		c.mu.Unlock()
		existing.RecomputeConnectModes(c.ourIdentity, false)
		if c.lis.OnUserUpdated != nil {
			c.lis.OnUserUpdated(c, existing, changed)
		}
		return
	}

	if !hasID {
		c.mu.Unlock()
		return
	}
	cid, err := identity.ParseCID(cidStr)
	if err != nil {
		c.mu.Unlock()
		return
	}

	if other, dup := c.usersByCID[cid]; dup && other.SID() != cmd.From {
		// Same CID seen under a different SID that's already online:
		// a buggy hub. Log and drop, map unchanged.
		c.mu.Unlock()
		if c.lis.OnStatus != nil {
			c.lis.OnStatus(c, severity.Verbose,
				"duplicate CID "+cid.String()+" seen as "+other.Nick()+" and "+np["NI"])
		}
		return
	}

	user := identity.NewUser(cid)
	user.SetFlag(identity.FlagOnline, true)
	id := identity.NewIdentity(user, cmd.From)
	id.SetAll(np)
	c.usersBySID[cmd.From] = id
	c.usersByCID[cid] = id
	c.mu.Unlock()

	id.RecomputeConnectModes(c.ourIdentity, false)
	if c.lis.OnUserJoined != nil {
		c.lis.OnUserJoined(c, id)
	}
}

func (c *Client) applyOwnINFEcho(cmd *adc.Command) {
	np := cmd.NamedParams()
	c.mu.RLock()
	id := c.ourIdentity
	c.mu.RUnlock()
	if id == nil {
		return
	}
	id.SetAll(np)
}

// removeUser deletes a SID from the table (QUI handling) and fires
// OnUserParted.
func (c *Client) removeUser(sid identity.SID) {
	c.mu.Lock()
	u, ok := c.usersBySID[sid]
	if ok {
		delete(c.usersBySID, sid)
		if existing, ok2 := c.usersByCID[u.User().CID()]; ok2 && existing.SID() == sid {
			delete(c.usersByCID, u.User().CID())
		}
	}
	c.mu.Unlock()
	if ok && c.lis.OnUserParted != nil {
		c.lis.OnUserParted(c, u)
	}
}

// UserBySID looks up the online user table (invariant 6).
func (c *Client) UserBySID(sid identity.SID) (*identity.OnlineUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.usersBySID[sid]
	return u, ok
}

// UserByCID looks up by content ID.
func (c *Client) UserByCID(cid identity.CID) (*identity.OnlineUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.usersByCID[cid]
	return u, ok
}

// OurIdentity returns our own Identity on this hub (valid once SID is
// assigned).
func (c *Client) OurIdentity() *identity.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ourIdentity
}
