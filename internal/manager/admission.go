package manager

import (
	"context"

	"vramd/pkg/types"
)

// ObserveModelSize records a model's observed VRAM footprint so later
// admission checks have a requirement estimate. Estimates are kept in the
// ristretto cache and survive the model being unloaded.
func (m *Manager) ObserveModelSize(modelID string, sizeMB float64) {
	if modelID == "" || sizeMB <= 0 {
		return
	}
	m.estimates.Set(modelID, sizeMB, 1)
}

// estimatedSizeMB returns the learned requirement for a model, 0 if unknown.
func (m *Manager) estimatedSizeMB(modelID string) float64 {
	v, ok := m.estimates.Get(modelID)
	if !ok {
		return 0
	}
	mb, _ := v.(float64)
	return mb
}

// CanLoad decides whether loading modelID on dev may proceed.
//
// The hard check is local and unconditional: the estimated requirement must
// fit the device's currently reported free VRAM. Above the large-allocation
// cutoff the digital twin is additionally consulted; any recommendation other
// than "proceed" denies. The consult is soft: on twin timeout or error the
// check fails open and the decision falls back to the local check alone.
func (m *Manager) CanLoad(ctx context.Context, modelID string, dev types.Device) (bool, string) {
	sizeMB := m.estimatedSizeMB(modelID)
	free := m.budget(dev).FreeMB

	if sizeMB > free {
		admissionDeniedTotal.WithLabelValues("insufficient_vram").Inc()
		return false, "insufficient free VRAM"
	}
	if sizeMB > m.largeAllocCutoffMB {
		ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
		defer cancel()
		rec, err := m.twin.SimulateLoad(ctx, dev, sizeMB)
		if err != nil {
			// Fail open: the twin is advisory, not authoritative.
			m.log.Warn().Str("model", modelID).Err(err).Msg("load simulation unavailable, proceeding")
			rpcFailuresTotal.WithLabelValues("digital_twin").Inc()
			return true, "simulation unavailable"
		}
		if rec != "proceed" {
			m.log.Info().Str("model", modelID).Str("recommendation", rec).Msg("admission denied by simulation")
			admissionDeniedTotal.WithLabelValues("simulation").Inc()
			return false, "simulation recommends " + rec
		}
	}
	return true, "ok"
}
