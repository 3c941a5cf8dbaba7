package manager

import (
	"time"

	"vramd/pkg/types"
)

// The ledger is a cache of what the model manager peer reports as loaded.
// Accessors hand out copies only; callers must re-validate membership right
// before issuing a load or unload RPC, because another loop may have changed
// the table while the RPC was being prepared.

// applyPeerState reconciles the ledger with the peer-reported model list.
// The peer wins on any disagreement: entries it no longer reports are
// dropped, entries it newly reports are inserted. Locally tracked last-used
// times are kept when they are fresher than the report.
func (m *Manager) applyPeerState(reported []types.ModelEntry) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(reported))
	for _, r := range reported {
		seen[r.ModelID] = struct{}{}
		reportedLast := time.Unix(r.LastUsedUnix, 0)
		if cur, ok := m.ledger[r.ModelID]; ok {
			cur.Device = r.Device
			cur.VRAMUsageMB = r.VRAMUsageMB
			cur.BatchSize = r.BatchSize
			cur.VRAMPerSampleMB = r.VRAMPerSampleMB
			if reportedLast.After(cur.LastUsed) {
				cur.LastUsed = reportedLast
			}
			continue
		}
		e := &ledgerEntry{
			ModelID:         r.ModelID,
			Device:          r.Device,
			VRAMUsageMB:     r.VRAMUsageMB,
			LastUsed:        reportedLast,
			LoadedAt:        now,
			BatchSize:       r.BatchSize,
			VRAMPerSampleMB: r.VRAMPerSampleMB,
		}
		if r.LastUsedUnix <= 0 || reportedLast.After(now) {
			e.LastUsed = now
		}
		m.ledger[r.ModelID] = e
	}
	for id := range m.ledger {
		if _, ok := seen[id]; !ok {
			delete(m.ledger, id)
		}
	}
}

// snapshotLedger returns copies of all entries.
func (m *Manager) snapshotLedger() []ledgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		out = append(out, *e)
	}
	return out
}

// entriesOnDevice returns copies of entries hosted on one device.
func (m *Manager) entriesOnDevice(dev types.Device) []ledgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		if e.Device == dev {
			out = append(out, *e)
		}
	}
	return out
}

// contains reports current ledger membership.
func (m *Manager) contains(modelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ledger[modelID]
	return ok
}

// touch updates a model's last-used time, reporting whether it was present.
func (m *Manager) touch(modelID string, t time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.ledger[modelID]
	if !ok {
		return false
	}
	if t.After(e.LastUsed) {
		e.LastUsed = t
	}
	return true
}

// removeEntry drops a model after a confirmed unload.
func (m *Manager) removeEntry(modelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledger, modelID)
}
