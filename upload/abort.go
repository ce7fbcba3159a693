package upload

import "time"

// abortPollInterval and abortPollCount reproduce the exact wait used by
// UploadManager::abortUpload: `for (int i = 0; i < 20 ...) { sleep(250);
// }`, a 5 second cap on waiting for a disconnect to actually land.
const (
	abortPollInterval = 250 * time.Millisecond
	abortPollCount    = 20
)

// AbortUpload cancels every running or delay-pooled upload of realPath.
// If waitDisconnected, it blocks up to abortPollCount*abortPollInterval
// (5s) for those uploads to actually finish tearing down, the same
// bound the original gives a caller that needs the file handle released
// before it can be moved or deleted (e.g. a completed download being
// renamed into place).
func (m *Manager) AbortUpload(realPath string, waitDisconnected bool) {
	m.mu.Lock()
	var matched []*running
	for _, r := range m.uploads {
		if r.path == realPath {
			matched = append(matched, r)
		}
	}
	m.mu.Unlock()

	for _, r := range matched {
		if r.cancel != nil {
			r.cancel()
		}
	}

	for _, id := range m.pool.TokensForPath(realPath) {
		cid, _, class, ok := m.pool.Resume(id)
		if ok {
			m.scheduler.Release(cid, class)
		}
	}

	if !waitDisconnected {
		return
	}

	for i := 0; i < abortPollCount; i++ {
		if !m.anyRunning(realPath) {
			return
		}
		time.Sleep(abortPollInterval)
	}
}

func (m *Manager) anyRunning(realPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.uploads {
		if r.path == realPath {
			return true
		}
	}
	return false
}
