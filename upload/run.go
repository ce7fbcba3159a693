package upload

import (
	"context"
	"time"

	"github.com/airdcpp-web/dcppcore/identity"
)

// Run drives the once-a-second timer handlers: notifying queued users
// as slots free up, aging the delay pool, and reconciling the scheduler's
// per-peer uploading-count hints against a live snapshot once a minute.
// Grounded on UploadManager's on(TimerManagerListener::Second) and
// on(TimerManagerListener::Minute) handlers. liveUploaders is called
// under no lock and should return a fresh count of in-flight uploads per
// peer from whatever owns the real connection set (e.g. the hub
// registry).
func (m *Manager) Run(ctx context.Context, liveUploaders func() map[identity.CID]int) {
	second := time.NewTicker(time.Second)
	defer second.Stop()
	minute := time.NewTicker(reconcileEvery)
	defer minute.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-second.C:
			m.tickSecond()
		case <-minute.C:
			if liveUploaders != nil {
				m.scheduler.Reconcile(liveUploaders())
			}
		}
	}
}

// tickSecond ages the delay pool and notifies queued users, in that
// order so a just-expired delayed upload's slot is free before the
// notifier counts free slots.
func (m *Manager) tickSecond() {
	for _, exp := range m.pool.Tick() {
		m.scheduler.Release(exp.CID, exp.Class)
		m.scheduler.MarkIdle(exp.CID)
	}
	m.notifier.Tick(m.scheduler.FreeSlots())
}
