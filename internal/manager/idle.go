package manager

import (
	"context"
	"sort"
	"time"

	"vramd/pkg/types"
)

// idleCandidates returns copies of the models on dev idle longer than the
// configured timeout, oldest last-used first.
func (m *Manager) idleCandidates(dev types.Device) []ledgerEntry {
	now := m.now()
	m.mu.RLock()
	timeout := m.idleTimeout
	out := make([]ledgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		if e.Device == dev && now.Sub(e.LastUsed) > timeout {
			out = append(out, *e)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.Before(out[j].LastUsed) })
	return out
}

// idleSweep is one pass of the IdleEvictor: unload every model idle past the
// timeout, oldest first, with a short pause between requests so the peer is
// not flooded. Failed unloads stay in the ledger and are retried next sweep.
func (m *Manager) idleSweep(ctx context.Context) error {
	for _, dev := range types.Devices() {
		for _, cand := range m.idleCandidates(dev) {
			if ctx.Err() != nil {
				return nil
			}
			if err := m.requestUnload(ctx, cand.ModelID, "idle"); err != nil {
				if !IsModelNotFound(err) {
					m.log.Warn().Str("model", cand.ModelID).Err(err).Msg("idle eviction failed")
				}
				continue
			}
			m.sleepWithContext(ctx, m.unloadPause)
		}
	}
	return nil
}

func (m *Manager) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
