package manager

import (
	"context"
	"time"

	"vramd/pkg/types"
)

// Hard cap on retained samples per model; the prediction window prunes by
// age, this bounds memory under pathological access rates.
const maxUsageSamples = 256

// recordUsage appends one access timestamp to a model's usage history.
func (m *Manager) recordUsage(modelID string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append(m.history[modelID], t)
	if len(h) > maxUsageSamples {
		h = h[len(h)-maxUsageSamples:]
	}
	m.history[modelID] = h
}

// pruneHistory drops samples older than the prediction window and removes
// empty histories.
func (m *Manager) pruneHistory(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, samples := range m.history {
		cutoff := 0
		for cutoff < len(samples) && now.Sub(samples[cutoff]) >= m.predictionWindow {
			cutoff++
		}
		if cutoff == len(samples) {
			delete(m.history, id)
			continue
		}
		if cutoff > 0 {
			m.history[id] = append([]time.Time(nil), samples[cutoff:]...)
		}
	}
}

// predictorTick runs both preload signals: the upstream queue and the usage
// pattern heuristic. Each signal issues at most one preload per cycle.
func (m *Manager) predictorTick(ctx context.Context) error {
	m.queueSignal(ctx)
	m.patternSignal(ctx)
	return nil
}

// queueSignal preloads the model serving the first queued task type that maps
// to a model not currently loaded.
func (m *Manager) queueSignal(ctx context.Context) {
	if m.coordinator == nil || len(m.taskModels) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	tasks, err := m.coordinator.QueueTaskTypes(rctx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("queue status unavailable, skipping queue signal")
		rpcFailuresTotal.WithLabelValues("request_coordinator").Inc()
		return
	}
	for _, taskType := range tasks {
		modelID, ok := m.taskModels[taskType]
		if !ok || m.contains(modelID) {
			continue
		}
		m.preloadModel(ctx, modelID, "queue")
		return
	}
}

// patternSignal flags a model whose history shows frequent use with a lull of
// the right length: not so recent that it is still warm, not so old that the
// pattern has gone cold. One preload per cycle at most.
func (m *Manager) patternSignal(ctx context.Context) {
	now := m.now()
	m.pruneHistory(now)

	type candidate struct {
		modelID string
		freq    float64
	}
	var best *candidate

	m.mu.RLock()
	windowMinutes := m.predictionWindow.Minutes()
	for id, samples := range m.history {
		if len(samples) < m.minPredictionSamples {
			continue
		}
		if _, loaded := m.ledger[id]; loaded {
			continue
		}
		freq := float64(len(samples)) / windowMinutes
		sinceLast := now.Sub(samples[len(samples)-1])
		if freq > m.usageFrequencyFloor && sinceLast > preloadRecencyMin && sinceLast < preloadRecencyMax {
			if best == nil || freq > best.freq {
				best = &candidate{modelID: id, freq: freq}
			}
		}
	}
	m.mu.RUnlock()

	if best != nil {
		m.preloadModel(ctx, best.modelID, "pattern")
	}
}

// preloadModel runs one admission-gated load request. A denied admission is
// logged and skipped; the signal may flag the model again next cycle.
func (m *Manager) preloadModel(ctx context.Context, modelID, signal string) {
	if m.contains(modelID) {
		return
	}
	dev := m.preferredDevice()
	ok, reason := m.CanLoad(ctx, modelID, dev)
	if !ok {
		m.log.Info().Str("model", modelID).Str("signal", signal).Str("reason", reason).
			Msg("preload denied by admission")
		return
	}

	rctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()
	if err := m.modelManager.LoadModel(rctx, modelID, dev, m.quantization); err != nil {
		m.log.Warn().Str("model", modelID).Str("signal", signal).Err(err).Msg("preload failed")
		rpcFailuresTotal.WithLabelValues("model_manager").Inc()
		return
	}
	m.addPreloads(1)
	preloadsCounter.WithLabelValues(signal).Inc()
	m.publisher.Publish(Event{Name: "preload", ModelID: modelID, Fields: map[string]any{"signal": signal, "device": string(dev)}})
	m.log.Info().Str("model", modelID).Str("signal", signal).Str("device", string(dev)).Msg("model preloaded")
}

// preferredDevice picks the device with the most free VRAM for new loads.
func (m *Manager) preferredDevice() types.Device {
	best := types.DeviceMainPC
	bestFree := -1.0
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, dev := range types.Devices() {
		if free := m.budgets[dev].FreeMB; free > bestFree {
			best, bestFree = dev, free
		}
	}
	return best
}
