package manager

import (
	"context"

	"vramd/pkg/types"
)

// refreshBudgets updates per-device counters from the digital twin, falling
// back to ledger-derived numbers when the twin is unreachable. After every
// refresh used+free equals total for each device.
func (m *Manager) refreshBudgets(ctx context.Context) {
	reported, err := m.twin.VRAMMetrics(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("vram metrics unavailable, using local fallback")
		rpcFailuresTotal.WithLabelValues("digital_twin").Inc()
		reported = nil
	}

	for _, dev := range types.Devices() {
		b, ok := reported[dev]
		if !ok {
			b = m.localBudget(dev)
		}
		b = normalizeBudget(b)
		m.mu.Lock()
		m.budgets[dev] = b
		m.mu.Unlock()

		label := string(dev)
		vramTotalMB.WithLabelValues(label).Set(b.TotalMB)
		vramUsedMB.WithLabelValues(label).Set(b.UsedMB)
		vramFreeMB.WithLabelValues(label).Set(b.FreeMB)
	}
}

// localBudget derives a device budget from the configured capacity and the
// ledger's reported footprints.
func (m *Manager) localBudget(dev types.Device) types.DeviceBudget {
	total := m.deviceTotals[dev]
	var used float64
	m.mu.RLock()
	for _, e := range m.ledger {
		if e.Device == dev {
			used += e.VRAMUsageMB
		}
	}
	m.mu.RUnlock()
	return types.DeviceBudget{TotalMB: total, UsedMB: used}
}

// normalizeBudget enforces used+free == total. Three cases: a full report is
// recomputed so the sum holds exactly, a report without free gets it derived,
// and a used-above-total report is clamped.
func normalizeBudget(b types.DeviceBudget) types.DeviceBudget {
	if b.TotalMB < 0 {
		b.TotalMB = 0
	}
	if b.UsedMB < 0 {
		b.UsedMB = 0
	}
	if b.UsedMB > b.TotalMB {
		b.UsedMB = b.TotalMB
	}
	b.FreeMB = b.TotalMB - b.UsedMB
	return b
}

// budget returns the current counters for one device.
func (m *Manager) budget(dev types.Device) types.DeviceBudget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.budgets[dev]
}
