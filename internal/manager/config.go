package manager

import (
	"time"

	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultPollInterval         = 5 * time.Second
	defaultIdleSweepInterval    = 60 * time.Second
	defaultPredictorInterval    = 60 * time.Second
	defaultOptimizationInterval = 300 * time.Second
	defaultIdleTimeout          = 900 * time.Second
	defaultPredictionWindow     = time.Hour
	defaultRPCTimeout           = 5 * time.Second
	defaultUnloadPause          = 100 * time.Millisecond
	defaultEvictionRetries      = 3
	defaultLargeAllocCutoffMB   = 2048
	defaultDefragThreshold      = 0.70
	defaultMinPredictionSamples = 3
	// Accesses per minute of prediction window above which a model counts
	// as historically frequent.
	defaultUsageFrequencyFloor = 0.1
)

// A model flagged by the pattern signal must have been used recently enough
// to matter but not so recently that it is obviously still warm.
const (
	preloadRecencyMin = 300 * time.Second
	preloadRecencyMax = 1800 * time.Second
)

func defaultThresholds() types.Thresholds {
	return types.Thresholds{Safe: 0.5, Warning: 0.75, Critical: 0.9}
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Peers. ModelManager and DigitalTwin are required; Coordinator and
	// Evaluation may be nil, disabling the queue signal and their health pings.
	ModelManager ModelManagerClient
	DigitalTwin  DigitalTwinClient
	Coordinator  CoordinatorClient
	Evaluation   EvaluationClient

	// Configured VRAM capacity per device in MB, used when the digital twin
	// is unreachable and counters must be derived from the ledger.
	DeviceTotalsMB map[types.Device]float64

	Thresholds           types.Thresholds
	IdleTimeout          time.Duration
	PredictionWindow     time.Duration
	PollInterval         time.Duration
	IdleSweepInterval    time.Duration
	PredictorInterval    time.Duration
	OptimizationInterval time.Duration
	RPCTimeout           time.Duration
	UnloadPause          time.Duration
	EvictionRetries      int
	LargeAllocCutoffMB   float64
	DefragThreshold      float64
	MinPredictionSamples int
	UsageFrequencyFloor  float64

	// PredictiveLoading toggles the whole UsagePredictor loop.
	PredictiveLoading bool
	// TaskModels maps upstream task types to the model that serves them,
	// e.g. "asr" -> "whisper-large-v3".
	TaskModels map[string]string
	// Quantization passed through on preload requests; empty uses the
	// model manager's default.
	Quantization string

	// PersistPath stores usage metadata across restarts; empty disables.
	PersistPath string

	Allocator AllocatorProbe
	Publisher EventPublisher
	Logger    zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig, applying package
// defaults for any unset tunables.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.IdleSweepInterval <= 0 {
		cfg.IdleSweepInterval = defaultIdleSweepInterval
	}
	if cfg.PredictorInterval <= 0 {
		cfg.PredictorInterval = defaultPredictorInterval
	}
	if cfg.OptimizationInterval <= 0 {
		cfg.OptimizationInterval = defaultOptimizationInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PredictionWindow <= 0 {
		cfg.PredictionWindow = defaultPredictionWindow
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = defaultRPCTimeout
	}
	if cfg.UnloadPause <= 0 {
		cfg.UnloadPause = defaultUnloadPause
	}
	if cfg.EvictionRetries <= 0 {
		cfg.EvictionRetries = defaultEvictionRetries
	}
	if cfg.LargeAllocCutoffMB <= 0 {
		cfg.LargeAllocCutoffMB = defaultLargeAllocCutoffMB
	}
	if cfg.DefragThreshold <= 0 {
		cfg.DefragThreshold = defaultDefragThreshold
	}
	if cfg.MinPredictionSamples <= 0 {
		cfg.MinPredictionSamples = defaultMinPredictionSamples
	}
	if cfg.UsageFrequencyFloor <= 0 {
		cfg.UsageFrequencyFloor = defaultUsageFrequencyFloor
	}
	if !cfg.Thresholds.Valid() {
		cfg.Thresholds = defaultThresholds()
	}
	if cfg.Allocator == nil {
		cfg.Allocator = noopAllocator{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return newManager(cfg)
}
