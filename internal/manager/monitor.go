package manager

import (
	"context"
	"sort"

	"vramd/pkg/types"
)

// monitorTick is one pass of the ResourceMonitor: refresh the ledger from the
// model manager, refresh device counters, classify pressure and evict as
// needed. Critical handling resolves fully within the tick.
func (m *Manager) monitorTick(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	reported, err := m.modelManager.LoadedModels(rctx)
	cancel()
	if err != nil {
		// Keep the cached ledger; the peer owns the truth and will be
		// re-queried next tick.
		m.log.Warn().Err(err).Msg("loaded-models refresh failed")
		rpcFailuresTotal.WithLabelValues("model_manager").Inc()
	} else {
		m.applyPeerState(reported)
		for _, r := range reported {
			m.ObserveModelSize(r.ModelID, r.VRAMUsageMB)
		}
	}

	m.refreshBudgets(ctx)

	for _, dev := range types.Devices() {
		state := m.classify(m.budget(dev).UsageRatio())
		m.setPressure(dev, state)
		switch state {
		case PressureCritical:
			m.handleCritical(ctx, dev)
		case PressureWarning:
			m.handleWarning(ctx, dev)
		}
	}
	return nil
}

func (m *Manager) classify(ratio float64) PressureState {
	m.mu.RLock()
	th := m.thresholds
	m.mu.RUnlock()
	switch {
	case ratio >= th.Critical:
		return PressureCritical
	case ratio >= th.Warning:
		return PressureWarning
	default:
		return PressureNormal
	}
}

func (m *Manager) setPressure(dev types.Device, state PressureState) {
	m.mu.Lock()
	prev := m.pressure[dev]
	m.pressure[dev] = state
	m.mu.Unlock()
	pressureGauge.WithLabelValues(string(dev)).Set(pressureLevel(state))
	if prev != state {
		m.log.Info().Str("device", string(dev)).
			Str("from", string(prev)).Str("to", string(state)).
			Msg("pressure state changed")
	}
}

// handleCritical evicts the largest models on dev, one at a time with bounded
// retries, until the device drops below the critical threshold or candidates
// are exhausted.
func (m *Manager) handleCritical(ctx context.Context, dev types.Device) {
	candidates := m.entriesOnDevice(dev)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].VRAMUsageMB > candidates[j].VRAMUsageMB
	})

	budget := m.budget(dev)
	attempts := 0
	for _, cand := range candidates {
		if attempts >= m.evictionRetries {
			break
		}
		if budget.TotalMB > 0 && budget.UsedMB/budget.TotalMB < m.criticalThreshold() {
			break
		}
		attempts++
		if err := m.requestUnload(ctx, cand.ModelID, "critical"); err != nil {
			m.log.Warn().Str("model", cand.ModelID).Err(err).Msg("critical eviction failed, trying next candidate")
			continue
		}
		// Account for the freed memory locally; the next refresh corrects it.
		budget.UsedMB -= cand.VRAMUsageMB
		if budget.UsedMB < 0 {
			budget.UsedMB = 0
		}
	}
}

// handleWarning unloads the least-recently-used idle model on dev. With no
// idle candidates the cycle takes no action.
func (m *Manager) handleWarning(ctx context.Context, dev types.Device) {
	idle := m.idleCandidates(dev)
	if len(idle) == 0 {
		return
	}
	lru := idle[0]
	if err := m.requestUnload(ctx, lru.ModelID, "warning"); err != nil {
		m.log.Warn().Str("model", lru.ModelID).Err(err).Msg("warning eviction failed")
	}
}

func (m *Manager) criticalThreshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thresholds.Critical
}

// requestUnload asks the model manager to unload one model. The ledger is
// re-validated immediately before the RPC and updated only on success.
func (m *Manager) requestUnload(ctx context.Context, modelID, reason string) error {
	if !m.contains(modelID) {
		return ErrModelNotFound(modelID)
	}
	m.publisher.Publish(Event{Name: "evict_start", ModelID: modelID, Fields: map[string]any{"reason": reason}})

	rctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	if err := m.modelManager.UnloadModel(rctx, modelID); err != nil {
		rpcFailuresTotal.WithLabelValues("model_manager").Inc()
		return err
	}

	m.removeEntry(modelID)
	if reason != "defrag" {
		m.addEvictions(1)
	}
	evictionsCounter.WithLabelValues(reason).Inc()
	m.publisher.Publish(Event{Name: "evict_done", ModelID: modelID, Fields: map[string]any{"reason": reason}})
	m.log.Info().Str("model", modelID).Str("reason", reason).Msg("model unloaded")
	return nil
}

func pressureLevel(s PressureState) float64 {
	switch s {
	case PressureCritical:
		return 2
	case PressureWarning:
		return 1
	default:
		return 0
	}
}
