package manager

import (
	"encoding/json"
	"os"
	"time"
)

// Usage metadata survives restarts as a small JSON file so idle eviction and
// admission estimates do not start cold. Best effort: read and write errors
// are ignored, the file is advisory only.

type usageRecord struct {
	LastUsedUnix int64   `json:"last_used_unix"`
	EstVRAMMB    float64 `json:"est_vram_mb,omitempty"`
	AccessUnix   []int64 `json:"access_unix,omitempty"`
}

func (m *Manager) restoreUsageMetadata() {
	if m.persistPath == "" {
		return
	}
	f, err := os.Open(m.persistPath)
	if err != nil {
		return
	}
	defer f.Close()
	var data map[string]usageRecord
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return
	}
	now := m.now()
	for id, rec := range data {
		if rec.EstVRAMMB > 0 {
			m.ObserveModelSize(id, rec.EstVRAMMB)
		}
		for _, ts := range rec.AccessUnix {
			t := time.Unix(ts, 0)
			if now.Sub(t) < m.predictionWindow {
				m.recordUsage(id, t)
			}
		}
	}
}

func (m *Manager) saveUsageMetadata() {
	if m.persistPath == "" {
		return
	}
	// Snapshot under lock
	m.mu.RLock()
	snap := make(map[string]usageRecord, len(m.history)+len(m.ledger))
	for id, samples := range m.history {
		rec := usageRecord{AccessUnix: make([]int64, 0, len(samples))}
		for _, t := range samples {
			rec.AccessUnix = append(rec.AccessUnix, t.Unix())
		}
		rec.LastUsedUnix = samples[len(samples)-1].Unix()
		snap[id] = rec
	}
	for id, e := range m.ledger {
		rec := snap[id]
		if e.LastUsed.Unix() > rec.LastUsedUnix {
			rec.LastUsedUnix = e.LastUsed.Unix()
		}
		snap[id] = rec
	}
	m.mu.RUnlock()

	for id, rec := range snap {
		if est := m.estimatedSizeMB(id); est > 0 {
			rec.EstVRAMMB = est
			snap[id] = rec
		}
	}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(m.persistPath, b, 0o644)
}
