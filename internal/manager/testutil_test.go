package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// fakeModelManager records load/unload requests and serves a configurable
// loaded-model list.
type fakeModelManager struct {
	mu         sync.Mutex
	loaded     []types.ModelEntry
	loads      []string
	unloads    []string
	failLoad   bool
	failUnload map[string]bool
	pingErr    error
}

func (f *fakeModelManager) LoadModel(_ context.Context, modelID string, _ types.Device, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return errors.New("load refused")
	}
	f.loads = append(f.loads, modelID)
	return nil
}

func (f *fakeModelManager) UnloadModel(_ context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnload[modelID] {
		return errors.New("unload refused")
	}
	f.unloads = append(f.unloads, modelID)
	return nil
}

func (f *fakeModelManager) LoadedModels(context.Context) ([]types.ModelEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ModelEntry(nil), f.loaded...), nil
}

func (f *fakeModelManager) Ping(context.Context) error { return f.pingErr }

func (f *fakeModelManager) unloadOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unloads...)
}

func (f *fakeModelManager) loadOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

// fakeTwin serves configurable metrics and simulation recommendations.
type fakeTwin struct {
	mu             sync.Mutex
	metrics        map[types.Device]types.DeviceBudget
	metricsErr     error
	recommendation string
	simulateErr    error
	simulations    int
	pingErr        error
}

func (f *fakeTwin) SimulateLoad(context.Context, types.Device, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulations++
	if f.simulateErr != nil {
		return "", f.simulateErr
	}
	return f.recommendation, nil
}

func (f *fakeTwin) VRAMMetrics(context.Context) (map[types.Device]types.DeviceBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	out := make(map[types.Device]types.DeviceBudget, len(f.metrics))
	for k, v := range f.metrics {
		out[k] = v
	}
	return out, nil
}

func (f *fakeTwin) Ping(context.Context) error { return f.pingErr }

type fakeCoordinator struct {
	tasks   []string
	err     error
	pingErr error
}

func (f *fakeCoordinator) QueueTaskTypes(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.tasks...), nil
}

func (f *fakeCoordinator) Ping(context.Context) error { return f.pingErr }

type fakeEvaluation struct{ pingErr error }

func (f *fakeEvaluation) Ping(context.Context) error { return f.pingErr }

// fakeAllocator reports fixed counters.
type fakeAllocator struct {
	reservedMB  float64
	allocatedMB float64
	cleared     int
}

func (f *fakeAllocator) Stats() (float64, float64, bool) {
	return f.reservedMB, f.allocatedMB, f.reservedMB > 0
}

func (f *fakeAllocator) ClearCache() { f.cleared++ }

// testEnv bundles a manager with its fakes and a controllable clock.
type testEnv struct {
	m     *Manager
	mm    *fakeModelManager
	twin  *fakeTwin
	coord *fakeCoordinator
	clock time.Time
}

func newTestEnv(t *testing.T, mutate func(*ManagerConfig)) *testEnv {
	t.Helper()
	mm := &fakeModelManager{failUnload: map[string]bool{}}
	twin := &fakeTwin{recommendation: "proceed"}
	coord := &fakeCoordinator{}
	cfg := ManagerConfig{
		ModelManager: mm,
		DigitalTwin:  twin,
		Coordinator:  coord,
		Evaluation:   &fakeEvaluation{},
		DeviceTotalsMB: map[types.Device]float64{
			types.DeviceMainPC: 10000,
			types.DevicePC2:    8000,
		},
		UnloadPause:       time.Millisecond,
		PredictiveLoading: true,
		Logger:            zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.estimates.Close() })
	env := &testEnv{m: m, mm: mm, twin: twin, coord: coord, clock: time.Unix(1700000000, 0)}
	m.now = func() time.Time { return env.clock }
	return env
}

// loadEntry inserts a ledger entry directly, bypassing the peer refresh.
func (e *testEnv) loadEntry(modelID string, dev types.Device, sizeMB float64, idleFor time.Duration) {
	e.m.mu.Lock()
	e.m.ledger[modelID] = &ledgerEntry{
		ModelID:     modelID,
		Device:      dev,
		VRAMUsageMB: sizeMB,
		LastUsed:    e.clock.Add(-idleFor),
		LoadedAt:    e.clock.Add(-idleFor),
	}
	e.m.mu.Unlock()
}

// setBudget installs device counters directly.
func (e *testEnv) setBudget(dev types.Device, total, used float64) {
	e.m.mu.Lock()
	e.m.budgets[dev] = types.DeviceBudget{TotalMB: total, UsedMB: used, FreeMB: total - used}
	e.m.mu.Unlock()
}

// observeSize records a size estimate and waits for the cache to absorb it.
func (e *testEnv) observeSize(modelID string, mb float64) {
	e.m.ObserveModelSize(modelID, mb)
	e.m.estimates.Wait()
}
