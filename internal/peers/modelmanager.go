package peers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// ModelManager talks to the peer that actually loads and unloads models.
// It is the single writer of truth for GPU allocation; the resource manager
// only requests changes and mirrors the reported state.
type ModelManager struct {
	c *Client
}

// NewModelManager builds the model manager client.
func NewModelManager(url string, timeout time.Duration, log zerolog.Logger) *ModelManager {
	return &ModelManager{c: NewClient("model_manager", url, timeout, log)}
}

// LoadModel asks the peer to load a model on a device. Quantization may be
// empty, in which case the peer applies its own default.
func (m *ModelManager) LoadModel(ctx context.Context, modelID string, device types.Device, quantization string) error {
	params := map[string]any{"model_id": modelID, "device": string(device)}
	if quantization != "" {
		params["quantization"] = quantization
	}
	return m.c.Call(ctx, "load_model", params, nil)
}

// UnloadModel asks the peer to unload a model.
func (m *ModelManager) UnloadModel(ctx context.Context, modelID string) error {
	return m.c.Call(ctx, "unload_model", map[string]any{"model_id": modelID}, nil)
}

// LoadedModels returns the peer's current loaded-model table.
func (m *ModelManager) LoadedModels(ctx context.Context) ([]types.ModelEntry, error) {
	var payload struct {
		Models []types.ModelEntry `json:"models"`
	}
	if err := m.c.Call(ctx, "get_loaded_models_status", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Models, nil
}

// Ping checks reachability.
func (m *ModelManager) Ping(ctx context.Context) error { return m.c.Ping(ctx) }
