package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Peer endpoints.
	ModelManagerURL    string `json:"model_manager_url" yaml:"model_manager_url" toml:"model_manager_url"`
	DigitalTwinURL     string `json:"digital_twin_url" yaml:"digital_twin_url" toml:"digital_twin_url"`
	CoordinatorURL     string `json:"request_coordinator_url" yaml:"request_coordinator_url" toml:"request_coordinator_url"`
	ModelEvaluationURL string `json:"model_evaluation_url" yaml:"model_evaluation_url" toml:"model_evaluation_url"`

	// Configured VRAM capacity in MB per machine, used as fallback when the
	// digital twin is unreachable.
	MainPCVRAMMB float64 `json:"mainpc_vram_mb" yaml:"mainpc_vram_mb" toml:"mainpc_vram_mb"`
	PC2VRAMMB    float64 `json:"pc2_vram_mb" yaml:"pc2_vram_mb" toml:"pc2_vram_mb"`

	// Pressure thresholds as usage ratios; must keep safe < warning < critical.
	CriticalThreshold float64 `json:"critical_threshold" yaml:"critical_threshold" toml:"critical_threshold"`
	WarningThreshold  float64 `json:"warning_threshold" yaml:"warning_threshold" toml:"warning_threshold"`
	SafeThreshold     float64 `json:"safe_threshold" yaml:"safe_threshold" toml:"safe_threshold"`

	// Tunables in seconds (MB for the allocation cutoff).
	IdleTimeoutSeconds          int     `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	PredictionWindowSeconds     int     `json:"prediction_window_seconds" yaml:"prediction_window_seconds" toml:"prediction_window_seconds"`
	PollIntervalSeconds         int     `json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	OptimizationIntervalSeconds int     `json:"optimization_interval_seconds" yaml:"optimization_interval_seconds" toml:"optimization_interval_seconds"`
	RPCTimeoutSeconds           int     `json:"rpc_timeout_seconds" yaml:"rpc_timeout_seconds" toml:"rpc_timeout_seconds"`
	DefragThreshold             float64 `json:"defrag_threshold" yaml:"defrag_threshold" toml:"defrag_threshold"`
	LargeAllocCutoffMB          float64 `json:"large_alloc_cutoff_mb" yaml:"large_alloc_cutoff_mb" toml:"large_alloc_cutoff_mb"`

	// Predictive loading.
	PredictiveLoading bool              `json:"predictive_loading" yaml:"predictive_loading" toml:"predictive_loading"`
	TaskModels        map[string]string `json:"task_models" yaml:"task_models" toml:"task_models"`
	Quantization      string            `json:"quantization" yaml:"quantization" toml:"quantization"`

	// Usage metadata snapshot file; empty disables persistence.
	PersistPath string `json:"persist_path" yaml:"persist_path" toml:"persist_path"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
