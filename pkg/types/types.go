package types

// Device identifies one of the two machines whose VRAM is managed.
type Device string

const (
	DeviceMainPC Device = "mainpc"
	DevicePC2    Device = "pc2"
)

// Devices lists all managed devices in a stable order.
func Devices() []Device { return []Device{DeviceMainPC, DevicePC2} }

// ParseDevice maps a wire string to a Device. Unknown strings default to
// MainPC, matching the placement used for unlabelled models.
func ParseDevice(s string) Device {
	if Device(s) == DevicePC2 {
		return DevicePC2
	}
	return DeviceMainPC
}

// ModelEntry describes one currently loaded model as reported by the
// model manager peer. The ledger caches these; the peer is authoritative.
type ModelEntry struct {
	// Stable model identifier.
	ModelID string `json:"model_id"`
	// Device hosting the model.
	Device Device `json:"device"`
	// Reported VRAM footprint in MB.
	VRAMUsageMB float64 `json:"vram_usage_mb"`
	// Last time the model served a request (unix seconds).
	LastUsedUnix int64 `json:"last_used_unix"`
	// Current batch size, 0 when the model does not expose one.
	BatchSize int `json:"batch_size,omitempty"`
	// Incremental VRAM cost per batch sample in MB, 0 when unknown.
	VRAMPerSampleMB float64 `json:"vram_per_sample_mb,omitempty"`
}

// DeviceBudget is a point-in-time view of one device's VRAM counters.
type DeviceBudget struct {
	TotalMB float64 `json:"total_mb"`
	UsedMB  float64 `json:"used_mb"`
	FreeMB  float64 `json:"free_mb"`
}

// UsageRatio returns used/total, or 0 when total is unknown.
func (b DeviceBudget) UsageRatio() float64 {
	if b.TotalMB <= 0 {
		return 0
	}
	return b.UsedMB / b.TotalMB
}

// Thresholds holds the pressure classification boundaries as usage ratios.
// Valid configurations satisfy 0 < Safe < Warning < Critical < 1.
type Thresholds struct {
	Critical float64 `json:"critical"`
	Warning  float64 `json:"warning"`
	Safe     float64 `json:"safe"`
}

// Valid reports whether the threshold ordering invariant holds.
func (t Thresholds) Valid() bool {
	return t.Safe > 0 && t.Safe < t.Warning && t.Warning < t.Critical && t.Critical < 1
}
