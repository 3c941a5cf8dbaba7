package peers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// Recommendation values returned by the digital twin's load simulation.
const (
	RecommendationProceed = "proceed"
	RecommendationDeny    = "deny"
	RecommendationDefer   = "defer"
)

// DigitalTwin talks to the telemetry peer that mirrors device state and can
// simulate the effect of a prospective allocation.
type DigitalTwin struct {
	c *Client
}

// NewDigitalTwin builds the digital twin client.
func NewDigitalTwin(url string, timeout time.Duration, log zerolog.Logger) *DigitalTwin {
	return &DigitalTwin{c: NewClient("digital_twin", url, timeout, log)}
}

// SimulateLoad asks the twin whether loading sizeMB on device is advisable.
// The returned recommendation is one of the Recommendation* constants; the
// caller decides how to react (admission treats anything but "proceed" as a
// denial and treats errors as fail-open).
func (d *DigitalTwin) SimulateLoad(ctx context.Context, device types.Device, sizeMB float64) (string, error) {
	var payload struct {
		Recommendation string `json:"recommendation"`
	}
	err := d.c.Call(ctx, "simulate_load", map[string]any{
		"device":  string(device),
		"size_mb": sizeMB,
	}, &payload)
	if err != nil {
		return "", err
	}
	return payload.Recommendation, nil
}

// VRAMMetrics fetches per-device VRAM counters from the twin.
func (d *DigitalTwin) VRAMMetrics(ctx context.Context) (map[types.Device]types.DeviceBudget, error) {
	var payload struct {
		VRAMUsage map[string]types.DeviceBudget `json:"vram_usage"`
	}
	err := d.c.Call(ctx, "get_metrics", map[string]any{
		"metrics": []string{"vram_usage"},
	}, &payload)
	if err != nil {
		return nil, err
	}
	out := make(map[types.Device]types.DeviceBudget, len(payload.VRAMUsage))
	for name, b := range payload.VRAMUsage {
		out[types.ParseDevice(name)] = b
	}
	return out, nil
}

// Ping checks reachability.
func (d *DigitalTwin) Ping(ctx context.Context) error { return d.c.Ping(ctx) }
