package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration. It is loaded once at
// startup and never mutated afterwards.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Executor  ExecutorConfig  `toml:"executor"`
	Workflows WorkflowsConfig `toml:"workflows"`
	Storage   StorageConfig   `toml:"storage"`
	Events    EventsConfig    `toml:"events"`
	Watchdog  WatchdogConfig  `toml:"watchdog"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

// SchedulerConfig bounds the admission scheduler's resources.
type SchedulerConfig struct {
	MaxWorkers     int `toml:"max_workers" validate:"min=1"`      // Global cap on concurrently running jobs
	MaxActiveUsers int `toml:"max_active_users" validate:"min=1"` // Cap on distinct tenants with running jobs
}

// ExecutorConfig controls the tiled-execution driver.
type ExecutorConfig struct {
	TileSize        int  `toml:"tile_size" validate:"min=1"`    // Tile edge in pixels
	TileOverlap     int  `toml:"tile_overlap" validate:"min=0"` // Context margin added to interior tiles
	PreviewMaxDim   int  `toml:"preview_max_dim" validate:"min=1"`
	EnableInstanSeg bool `toml:"enable_instanseg"` // false forces the deterministic SEGMENT_CELLS fallback
}

type WorkflowsConfig struct {
	MaxJobsPerWorkflow int `toml:"max_jobs_per_workflow" validate:"min=1"`
}

type StorageConfig struct {
	UploadsDir string       `toml:"uploads_dir"`
	Badger     BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the file index.
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type EventsConfig struct {
	BufferSize       int    `toml:"buffer_size" validate:"min=1"` // Per-subscriber event buffer
	ProgressThrottle string `toml:"progress_throttle"`            // e.g. "250ms" - min interval between streamed progress events
}

// WatchdogConfig controls the background sweep that flags long-running jobs.
type WatchdogConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`    // cron spec, e.g. "@every 1m"
	MaxRunning string `toml:"max_running"` // RUNNING duration before a warning is logged
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig returns the built-in defaults. Config files, environment
// variables and CLI flags layer on top, in that order.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Scheduler: SchedulerConfig{
			MaxWorkers:     4,
			MaxActiveUsers: 3,
		},
		Executor: ExecutorConfig{
			TileSize:        1024,
			TileOverlap:     64,
			PreviewMaxDim:   2048,
			EnableInstanSeg: true,
		},
		Workflows: WorkflowsConfig{
			MaxJobsPerWorkflow: 10,
		},
		Storage: StorageConfig{
			UploadsDir: "./uploads",
			Badger: BadgerConfig{
				Path: "./data/tissuelab",
			},
		},
		Events: EventsConfig{
			BufferSize:       64,
			ProgressThrottle: "250ms",
		},
		Watchdog: WatchdogConfig{
			Enabled:    true,
			Schedule:   "@every 1m",
			MaxRunning: "30m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the validator tags plus a few cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Executor.TileOverlap*2 >= c.Executor.TileSize {
		return fmt.Errorf("invalid configuration: tile_overlap %d must be less than half of tile_size %d",
			c.Executor.TileOverlap, c.Executor.TileSize)
	}
	if c.Events.ProgressThrottle != "" {
		if _, err := time.ParseDuration(c.Events.ProgressThrottle); err != nil {
			return fmt.Errorf("invalid configuration: events.progress_throttle: %w", err)
		}
	}
	if c.Watchdog.MaxRunning != "" {
		if _, err := time.ParseDuration(c.Watchdog.MaxRunning); err != nil {
			return fmt.Errorf("invalid configuration: watchdog.max_running: %w", err)
		}
	}
	return nil
}

// ProgressThrottleInterval returns the parsed stream throttle interval.
func (c *Config) ProgressThrottleInterval() time.Duration {
	d, err := time.ParseDuration(c.Events.ProgressThrottle)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}

// WatchdogMaxRunning returns the parsed RUNNING-duration threshold.
func (c *Config) WatchdogMaxRunning() time.Duration {
	d, err := time.ParseDuration(c.Watchdog.MaxRunning)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("TISSUELAB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TISSUELAB_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if maxWorkers := os.Getenv("TISSUELAB_MAX_WORKERS"); maxWorkers != "" {
		if n, err := strconv.Atoi(maxWorkers); err == nil {
			config.Scheduler.MaxWorkers = n
		}
	}
	if maxUsers := os.Getenv("TISSUELAB_MAX_ACTIVE_USERS"); maxUsers != "" {
		if n, err := strconv.Atoi(maxUsers); err == nil {
			config.Scheduler.MaxActiveUsers = n
		}
	}

	if tileSize := os.Getenv("TISSUELAB_TILE_SIZE"); tileSize != "" {
		if n, err := strconv.Atoi(tileSize); err == nil {
			config.Executor.TileSize = n
		}
	}
	if tileOverlap := os.Getenv("TISSUELAB_TILE_OVERLAP"); tileOverlap != "" {
		if n, err := strconv.Atoi(tileOverlap); err == nil {
			config.Executor.TileOverlap = n
		}
	}
	if enable := os.Getenv("TISSUELAB_ENABLE_INSTANSEG"); enable != "" {
		if b, err := strconv.ParseBool(enable); err == nil {
			config.Executor.EnableInstanSeg = b
		}
	}

	if maxJobs := os.Getenv("TISSUELAB_MAX_JOBS_PER_WORKFLOW"); maxJobs != "" {
		if n, err := strconv.Atoi(maxJobs); err == nil {
			config.Workflows.MaxJobsPerWorkflow = n
		}
	}

	if uploadsDir := os.Getenv("TISSUELAB_UPLOADS_DIR"); uploadsDir != "" {
		config.Storage.UploadsDir = uploadsDir
	}
	if badgerPath := os.Getenv("TISSUELAB_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("TISSUELAB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
