package manager

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// Manager owns all mutable VRAM-tracking state. The mutex is held only for
// reads and updates of that state, never across a peer RPC.
type Manager struct {
	mu       sync.RWMutex
	ledger   map[string]*ledgerEntry
	history  map[string][]time.Time
	budgets  map[types.Device]types.DeviceBudget
	pressure map[types.Device]PressureState

	thresholds  types.Thresholds
	idleTimeout time.Duration

	// Learned per-model VRAM requirements, keyed by model id. Entries outlive
	// ledger churn so admission keeps an estimate after a model is unloaded.
	estimates *ristretto.Cache

	modelManager ModelManagerClient
	twin         DigitalTwinClient
	coordinator  CoordinatorClient
	evaluation   EvaluationClient

	alloc     AllocatorProbe
	publisher EventPublisher
	log       zerolog.Logger

	deviceTotals      map[types.Device]float64
	taskModels        map[string]string
	quantization      string
	predictiveEnabled bool
	persistPath       string

	predictionWindow     time.Duration
	pollInterval         time.Duration
	idleSweepInterval    time.Duration
	predictorInterval    time.Duration
	optimizationInterval time.Duration
	rpcTimeout           time.Duration
	unloadPause          time.Duration
	evictionRetries      int
	largeAllocCutoffMB   float64
	defragThreshold      float64
	minPredictionSamples int
	usageFrequencyFloor  float64

	evictionsTotal uint64
	preloadsTotal  uint64
	defragTotal    uint64

	startTime time.Time
	now       func() time.Time
}

func newManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.ModelManager == nil {
		return nil, fmt.Errorf("manager: model manager client is required")
	}
	if cfg.DigitalTwin == nil {
		return nil, fmt.Errorf("manager: digital twin client is required")
	}
	est, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     1 << 12, // unit cost per entry; bounds tracked model ids
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("manager: estimate cache: %w", err)
	}
	m := &Manager{
		ledger:   make(map[string]*ledgerEntry),
		history:  make(map[string][]time.Time),
		budgets:  make(map[types.Device]types.DeviceBudget),
		pressure: make(map[types.Device]PressureState),

		thresholds:  cfg.Thresholds,
		idleTimeout: cfg.IdleTimeout,
		estimates:   est,

		modelManager: cfg.ModelManager,
		twin:         cfg.DigitalTwin,
		coordinator:  cfg.Coordinator,
		evaluation:   cfg.Evaluation,

		alloc:     cfg.Allocator,
		publisher: cfg.Publisher,
		log:       cfg.Logger,

		deviceTotals:      cfg.DeviceTotalsMB,
		taskModels:        cfg.TaskModels,
		quantization:      cfg.Quantization,
		predictiveEnabled: cfg.PredictiveLoading,
		persistPath:       cfg.PersistPath,

		predictionWindow:     cfg.PredictionWindow,
		pollInterval:         cfg.PollInterval,
		idleSweepInterval:    cfg.IdleSweepInterval,
		predictorInterval:    cfg.PredictorInterval,
		optimizationInterval: cfg.OptimizationInterval,
		rpcTimeout:           cfg.RPCTimeout,
		unloadPause:          cfg.UnloadPause,
		evictionRetries:      cfg.EvictionRetries,
		largeAllocCutoffMB:   cfg.LargeAllocCutoffMB,
		defragThreshold:      cfg.DefragThreshold,
		minPredictionSamples: cfg.MinPredictionSamples,
		usageFrequencyFloor:  cfg.UsageFrequencyFloor,

		startTime: time.Now(),
		now:       time.Now,
	}
	for _, dev := range types.Devices() {
		m.pressure[dev] = PressureNormal
		m.budgets[dev] = types.DeviceBudget{TotalMB: cfg.DeviceTotalsMB[dev], FreeMB: cfg.DeviceTotalsMB[dev]}
	}
	m.restoreUsageMetadata()
	return m, nil
}

// UptimeSeconds reports seconds since construction.
func (m *Manager) UptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// Close persists usage metadata and releases the estimate cache. The
// background loops must already be stopped via their context.
func (m *Manager) Close() error {
	m.saveUsageMetadata()
	m.estimates.Close()
	return nil
}

func (m *Manager) addEvictions(n uint64) { atomic.AddUint64(&m.evictionsTotal, n) }
func (m *Manager) addPreloads(n uint64)  { atomic.AddUint64(&m.preloadsTotal, n) }

// Evictions returns the number of unloads this process has requested
// successfully, across all eviction paths.
func (m *Manager) Evictions() uint64 { return atomic.LoadUint64(&m.evictionsTotal) }

// Preloads returns the number of predictive loads issued successfully.
func (m *Manager) Preloads() uint64 { return atomic.LoadUint64(&m.preloadsTotal) }
