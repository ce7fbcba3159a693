// Package hub implements the ADC hub client:
// the state machine over the buffered transport, the SID→OnlineUser
// table, user-connect negotiation (CTM/RCM/NAT/RNT), HBRI validation, and
// the outgoing per-hub search priority queue.
//
// Modeled on the state-machine-over-a-connection shape of
// pkg/client (_examples/perkeep-perkeep/pkg/client/sync.go) and on
// _examples/other_examples/4a840276_RoLex-go-dcpp__adc-client-client2hub.go.go
// for the exact PROTOCOL→IDENTIFY→VERIFY→NORMAL ordering.
package hub

// State is the hub connection state machine.
type State int

const (
	StateConnecting State = iota
	StateProtocol
	StateIdentify
	StateVerify
	StateNormal
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateProtocol:
		return "protocol"
	case StateIdentify:
		return "identify"
	case StateVerify:
		return "verify"
	case StateNormal:
		return "normal"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the state machine edges, used to reject
// frames arriving in the wrong state
// (dcerr.BadProtocolState).
var validTransitions = map[State][]State{
	StateConnecting:   {StateProtocol},
	StateProtocol:     {StateIdentify},
	StateIdentify:     {StateVerify, StateNormal}, // INF with no password skips VERIFY
	StateVerify:       {StateNormal},
	StateNormal:       {StateDisconnected, StateVerify},
	StateDisconnected: {StateProtocol}, // auto-reconnect dials again
}

func (s State) canTransitionTo(next State) bool {
	for _, v := range validTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}
