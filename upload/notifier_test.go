package upload

import (
	"testing"

	"github.com/airdcpp-web/dcppcore/identity"
)

func TestNotifierEnqueueThenTickDialsInFIFOOrder(t *testing.T) {
	n := NewNotifier()
	var dialed []identity.CID
	n.SetDialFunc(func(cid identity.CID) { dialed = append(dialed, cid) })

	a, b, c := cidOf(1), cidOf(2), cidOf(3)
	n.Enqueue(a)
	n.Enqueue(b)
	n.Enqueue(c)

	n.Tick(2)
	if len(dialed) != 2 || dialed[0] != a || dialed[1] != b {
		t.Fatalf("expected the first two waiting users dialed in FIFO order, got %v", dialed)
	}
	if n.Empty() {
		t.Fatal("expected c to still be waiting")
	}
}

func TestNotifierIsNotifiedUntilRemoved(t *testing.T) {
	n := NewNotifier()
	cid := cidOf(1)
	n.Enqueue(cid)
	n.Tick(1)
	if !n.IsNotified(cid) {
		t.Fatal("expected cid to be marked notified after Tick grants it a slot")
	}
	n.Remove(cid)
	if n.IsNotified(cid) {
		t.Fatal("expected Remove to clear the notified cache")
	}
}

func TestNotifierEmptyWhenNothingWaitingOrNotified(t *testing.T) {
	n := NewNotifier()
	if !n.Empty() {
		t.Fatal("expected a fresh notifier to be empty")
	}
	n.Enqueue(cidOf(1))
	if n.Empty() {
		t.Fatal("expected Empty to be false once a user is waiting")
	}
}

func TestNotifierDoesNotDoubleEnqueue(t *testing.T) {
	n := NewNotifier()
	cid := cidOf(1)
	n.Enqueue(cid)
	n.Enqueue(cid)
	var dialed int
	n.SetDialFunc(func(identity.CID) { dialed++ })
	n.Tick(5)
	if dialed != 1 {
		t.Fatalf("expected cid to be dialed exactly once despite double enqueue, got %d", dialed)
	}
}
