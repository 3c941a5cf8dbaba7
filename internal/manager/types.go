package manager

import (
	"context"
	"time"

	"vramd/pkg/types"
)

// PressureState classifies a device's VRAM usage against the thresholds.
type PressureState string

const (
	PressureNormal   PressureState = "normal"
	PressureWarning  PressureState = "warning"
	PressureCritical PressureState = "critical"
)

// ledgerEntry is the internal record for one loaded model. It mirrors what
// the model manager peer reports and is never handed out by reference.
type ledgerEntry struct {
	ModelID         string
	Device          types.Device
	VRAMUsageMB     float64
	LastUsed        time.Time
	LoadedAt        time.Time
	BatchSize       int
	VRAMPerSampleMB float64
}

func (e *ledgerEntry) toAPI() types.ModelEntry {
	return types.ModelEntry{
		ModelID:         e.ModelID,
		Device:          e.Device,
		VRAMUsageMB:     e.VRAMUsageMB,
		LastUsedUnix:    e.LastUsed.Unix(),
		BatchSize:       e.BatchSize,
		VRAMPerSampleMB: e.VRAMPerSampleMB,
	}
}

// ModelManagerClient is the consumer-side surface of the model manager peer,
// the only component allowed to actually allocate or free GPU memory.
type ModelManagerClient interface {
	LoadModel(ctx context.Context, modelID string, device types.Device, quantization string) error
	UnloadModel(ctx context.Context, modelID string) error
	LoadedModels(ctx context.Context) ([]types.ModelEntry, error)
	Ping(ctx context.Context) error
}

// DigitalTwinClient provides device telemetry and load simulation.
type DigitalTwinClient interface {
	SimulateLoad(ctx context.Context, device types.Device, sizeMB float64) (string, error)
	VRAMMetrics(ctx context.Context) (map[types.Device]types.DeviceBudget, error)
	Ping(ctx context.Context) error
}

// CoordinatorClient exposes the upstream task queue.
type CoordinatorClient interface {
	QueueTaskTypes(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// EvaluationClient is health-checked only.
type EvaluationClient interface {
	Ping(ctx context.Context) error
}

// AllocatorProbe reads the local GPU allocator's counters. Stats returns
// reserved and allocated MB; ok is false when no allocator is available, in
// which case fragmentation is treated as zero. The probe only reflects the
// local device; remote-device fragmentation is not observable from here.
type AllocatorProbe interface {
	Stats() (reservedMB, allocatedMB float64, ok bool)
	// ClearCache releases cached allocator blocks during defragmentation.
	ClearCache()
}

// noopAllocator is the default probe on hosts without a local allocator.
type noopAllocator struct{}

func (noopAllocator) Stats() (float64, float64, bool) { return 0, 0, false }
func (noopAllocator) ClearCache()                     {}
