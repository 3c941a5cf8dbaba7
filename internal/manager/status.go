package manager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vramd/pkg/types"
)

// TrackUsage records one access to a model: a sample in the usage history
// and, when the model is loaded, a fresher last-used time in the ledger.
// Unknown models still accumulate history so the predictor can see them.
func (m *Manager) TrackUsage(modelID string) error {
	if strings.TrimSpace(modelID) == "" {
		return ErrInvalidArgument("model_id is required")
	}
	now := m.now()
	m.recordUsage(modelID, now)
	m.touch(modelID, now)
	return nil
}

// VramStatus builds the composite status response.
func (m *Manager) VramStatus() types.VramStatusResponse {
	m.mu.RLock()
	resp := types.VramStatusResponse{
		MainPC:             m.budgets[types.DeviceMainPC],
		PC2:                m.budgets[types.DevicePC2],
		Thresholds:         m.thresholds,
		IdleTimeoutSeconds: int(m.idleTimeout / time.Second),
		Pressure: map[types.Device]string{
			types.DeviceMainPC: string(m.pressure[types.DeviceMainPC]),
			types.DevicePC2:    string(m.pressure[types.DevicePC2]),
		},
	}
	resp.LoadedModels = make([]types.ModelEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		resp.LoadedModels = append(resp.LoadedModels, e.toAPI())
	}
	m.mu.RUnlock()

	sort.Slice(resp.LoadedModels, func(i, j int) bool {
		return resp.LoadedModels[i].ModelID < resp.LoadedModels[j].ModelID
	})
	resp.EvictionsTotal = m.Evictions()
	resp.PreloadsTotal = m.Preloads()
	return resp
}

// SetIdleTimeout changes the idle eviction timeout. Non-positive values are
// rejected without mutating state.
func (m *Manager) SetIdleTimeout(seconds int) error {
	if seconds <= 0 {
		return ErrInvalidArgument("idle timeout must be positive")
	}
	m.mu.Lock()
	m.idleTimeout = time.Duration(seconds) * time.Second
	m.mu.Unlock()
	m.log.Info().Int("seconds", seconds).Msg("idle timeout updated")
	return nil
}

// SetThreshold changes one pressure threshold. The resulting configuration
// must keep safe < warning < critical within (0, 1); otherwise the update is
// rejected and the current thresholds stay in effect.
func (m *Manager) SetThreshold(kind string, value float64) error {
	if value <= 0 || value >= 1 {
		return ErrInvalidArgument("threshold value must be in (0, 1)")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.thresholds
	switch kind {
	case "critical":
		next.Critical = value
	case "warning":
		next.Warning = value
	case "safe":
		next.Safe = value
	default:
		return ErrInvalidArgument("unknown threshold kind: " + kind)
	}
	if !next.Valid() {
		return ErrInvalidArgument("thresholds must satisfy safe < warning < critical")
	}
	m.thresholds = next
	m.log.Info().Str("kind", kind).Float64("value", value).Msg("threshold updated")
	return nil
}

// HealthCheck pings every peer dependency concurrently with a bounded
// timeout. The aggregate is healthy only when all peers answered.
func (m *Manager) HealthCheck(ctx context.Context) types.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()

	pings := map[string]func(context.Context) error{
		"model_manager":       m.modelManager.Ping,
		"digital_twin":        m.twin.Ping,
		"request_coordinator": nilablePing(m.coordinator),
		"model_evaluation":    nilablePing(m.evaluation),
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		peers = make(map[string]bool, len(pings))
	)
	for name, ping := range pings {
		wg.Add(1)
		go func(name string, ping func(context.Context) error) {
			defer wg.Done()
			ok := ping(ctx) == nil
			mu.Lock()
			peers[name] = ok
			mu.Unlock()
		}(name, ping)
	}
	wg.Wait()

	status := "healthy"
	for _, ok := range peers {
		if !ok {
			status = "unhealthy"
			break
		}
	}
	return types.HealthResponse{
		Status:        status,
		Peers:         peers,
		UptimeSeconds: m.UptimeSeconds(),
	}
}

func nilablePing(p interface {
	Ping(context.Context) error
}) func(context.Context) error {
	if p == nil {
		return func(context.Context) error { return errPeerNotConfigured }
	}
	return p.Ping
}
