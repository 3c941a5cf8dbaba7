package manager

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"vramd/pkg/types"
)

// fragmentationRatio reads the local allocator probe. It is a best-effort
// signal for the local device only; without a probe it reports 0 and the
// defragmenter never fires.
func (m *Manager) fragmentationRatio() float64 {
	reserved, allocated, ok := m.alloc.Stats()
	if !ok || reserved <= 0 {
		return 0
	}
	r := (reserved - allocated) / reserved
	if r < 0 {
		return 0
	}
	return r
}

// optimizeTick is one pass of the Defragmenter/BatchTuner: run a full
// unload/reload cycle when fragmentation is high, otherwise retune batch
// sizes on devices with plenty of headroom.
func (m *Manager) optimizeTick(ctx context.Context) error {
	ratio := m.fragmentationRatio()
	fragmentationGauge.Set(ratio)
	if ratio > m.defragThreshold {
		m.defragCycle(ctx, ratio)
		return nil
	}
	for _, dev := range types.Devices() {
		if m.budget(dev).UsageRatio() < 0.5 {
			m.tuneBatches(dev)
		}
	}
	return nil
}

// defragCycle unloads every loaded model, clears the allocator cache, then
// reloads the snapshot in original load order. Each reload re-passes
// admission; models that no longer fit are skipped and logged.
func (m *Manager) defragCycle(ctx context.Context, ratio float64) {
	snapshot := m.snapshotLedger()
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].LoadedAt.Before(snapshot[j].LoadedAt)
	})

	m.publisher.Publish(Event{Name: "defrag_start", Fields: map[string]any{"ratio": ratio, "models": len(snapshot)}})
	m.log.Info().Float64("ratio", ratio).Int("models", len(snapshot)).Msg("fragmentation high, starting defrag cycle")

	for _, e := range snapshot {
		if ctx.Err() != nil {
			return
		}
		if err := m.requestUnload(ctx, e.ModelID, "defrag"); err != nil {
			m.log.Warn().Str("model", e.ModelID).Err(err).Msg("defrag unload failed")
		}
		m.sleepWithContext(ctx, m.unloadPause)
	}

	m.alloc.ClearCache()
	m.refreshBudgets(ctx)

	reloaded := 0
	for _, e := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if ok, reason := m.CanLoad(ctx, e.ModelID, e.Device); !ok {
			m.log.Warn().Str("model", e.ModelID).Str("reason", reason).Msg("model skipped during defrag reload")
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
		err := m.modelManager.LoadModel(rctx, e.ModelID, e.Device, m.quantization)
		cancel()
		if err != nil {
			m.log.Warn().Str("model", e.ModelID).Err(err).Msg("defrag reload failed")
			rpcFailuresTotal.WithLabelValues("model_manager").Inc()
			continue
		}
		reloaded++
	}

	atomic.AddUint64(&m.defragTotal, 1)
	defragCyclesTotal.Inc()
	m.publisher.Publish(Event{Name: "defrag_done", Fields: map[string]any{"reloaded": reloaded, "snapshot": len(snapshot)}})
	m.log.Info().Int("reloaded", reloaded).Int("snapshot", len(snapshot)).Msg("defrag cycle finished")
}

// tuneBatches recomputes batch sizes for models on dev that expose one,
// targeting 80% of the currently available VRAM per model.
func (m *Manager) tuneBatches(dev types.Device) {
	free := m.budget(dev).FreeMB
	if free <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.ledger {
		if e.Device != dev || e.VRAMPerSampleMB <= 0 {
			continue
		}
		optimal := int(math.Floor(free * 0.8 / e.VRAMPerSampleMB))
		if optimal < 1 {
			optimal = 1
		}
		if optimal != e.BatchSize {
			m.log.Info().Str("model", e.ModelID).Str("device", string(dev)).
				Int("from", e.BatchSize).Int("to", optimal).Msg("batch size retuned")
			e.BatchSize = optimal
		}
	}
}
