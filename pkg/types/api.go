package types

// TrackUsageRequest is the payload for POST /track-usage.
type TrackUsageRequest struct {
	// Model that just served a request.
	// example: whisper-large-v3
	ModelID string `json:"model_id"`
}

// SetIdleTimeoutRequest is the payload for POST /config/idle-timeout.
type SetIdleTimeoutRequest struct {
	// New idle timeout in seconds; must be positive.
	// example: 900
	Seconds int `json:"seconds"`
}

// SetThresholdRequest is the payload for POST /config/threshold.
type SetThresholdRequest struct {
	// Which threshold to change: critical, warning or safe.
	// example: warning
	Kind string `json:"kind"`
	// New usage-ratio value in (0, 1).
	// example: 0.75
	Value float64 `json:"value"`
}

// AckResponse is the generic success acknowledgement.
type AckResponse struct {
	Status string `json:"status"`
}

// VramStatusResponse is returned by GET /vram-status.
type VramStatusResponse struct {
	// Per-device budgets keyed by device name.
	MainPC DeviceBudget `json:"mainpc"`
	PC2    DeviceBudget `json:"pc2"`
	// Models currently loaded according to the ledger.
	LoadedModels []ModelEntry `json:"loaded_models"`
	// Active pressure thresholds.
	Thresholds Thresholds `json:"thresholds"`
	// Pressure state per device (normal, warning, critical).
	Pressure map[Device]string `json:"pressure"`
	// Idle timeout currently applied by the evictor, in seconds.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
	// Total evictions performed since start.
	EvictionsTotal uint64 `json:"evictions_total"`
	// Total predictive preloads issued since start.
	PreloadsTotal uint64 `json:"preloads_total"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// Aggregate status: healthy or unhealthy.
	Status string `json:"status"`
	// Reachability of each peer dependency.
	Peers map[string]bool `json:"per_peer_reachable"`
	// Seconds since process start.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code"`
}
