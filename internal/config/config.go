package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/schedrt/pkg/model"
)

// OverlaySpec declares one hardware overlay: the app it serves, the partial
// image to load, and how many slots to dedicate to it.
type OverlaySpec struct {
	App     string `yaml:"app"`
	Overlay string `yaml:"overlay"`
	Kernel  string `yaml:"kernel"`
	Kind    string `yaml:"kind"`
	Slots   int    `yaml:"slots"`
}

// RunnerConfig holds configuration for the schedrt runner.
type RunnerConfig struct {
	Backend          string `yaml:"backend"`           // auto, cpu, fpga
	CPUWorkers       int    `yaml:"cpu_workers"`       // 0 = host concurrency
	CPUEngines       int    `yaml:"cpu_engines"`       // CPU engine instances (default 1)
	PreloadThreshold int    `yaml:"preload_threshold"` // 0 disables preloading
	CSV              bool   `yaml:"csv"`               // CSV result lines instead of human-readable
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
	StatusAddr       string `yaml:"status_addr"` // empty = no status server
	DBPath           string `yaml:"db"`          // empty = no result store

	// Reconfiguration plumbing. MockReconfig keeps everything in-process
	// for development hosts without an fpga_manager.
	FirmwareDir       string `yaml:"firmware_dir"`
	ManagerPath       string `yaml:"manager_path"`
	StaticShell       string `yaml:"static_shell"`
	MockReconfig      bool   `yaml:"mock_reconfig"`
	DecoupleGPIO      int    `yaml:"decouple_gpio"` // -1 = no decouple line
	DecoupleActiveLow bool   `yaml:"decouple_active_low"`
	DecoupleSettleMS  int    `yaml:"decouple_settle_ms"`

	Overlays []OverlaySpec `yaml:"overlays"`
}

// Default returns sensible defaults: automatic backend, preload threshold 3,
// mock reconfiguration.
func Default() RunnerConfig {
	return RunnerConfig{
		Backend:          string(model.BackendAuto),
		CPUEngines:       1,
		PreloadThreshold: 3,
		LogLevel:         "info",
		LogFormat:        "text",
		FirmwareDir:      "/lib/firmware",
		ManagerPath:      "/sys/class/fpga_manager/fpga0/firmware",
		MockReconfig:     true,
		DecoupleGPIO:     -1,
		DecoupleSettleMS: 5,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (RunnerConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the runner cannot honor.
func (c *RunnerConfig) Validate() error {
	if _, ok := model.ParseBackendMode(c.Backend); !ok {
		return fmt.Errorf("invalid backend %q (want auto, cpu, or fpga)", c.Backend)
	}
	if c.CPUWorkers < 0 {
		return fmt.Errorf("cpu_workers must be >= 0, got %d", c.CPUWorkers)
	}
	if c.CPUEngines < 0 {
		return fmt.Errorf("cpu_engines must be >= 0, got %d", c.CPUEngines)
	}
	if c.PreloadThreshold < 0 {
		return fmt.Errorf("preload_threshold must be >= 0, got %d", c.PreloadThreshold)
	}
	for i, ov := range c.Overlays {
		if ov.App == "" {
			return fmt.Errorf("overlays[%d]: app name is required", i)
		}
		if ov.Slots < 0 {
			return fmt.Errorf("overlays[%d]: slots must be >= 0", i)
		}
	}
	return nil
}

// Mode returns the parsed backend mode. Validate must have accepted the
// config first.
func (c *RunnerConfig) Mode() model.BackendMode {
	mode, _ := model.ParseBackendMode(c.Backend)
	return mode
}
