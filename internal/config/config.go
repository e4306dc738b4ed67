// Package config loads and validates the application configuration from a
// TOML file, layered over in-code defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration.
type Config struct {
	Paths     PathsConfig     `toml:"paths"`
	Recorder  RecorderConfig  `toml:"recorder"`
	Worker    WorkerConfig    `toml:"worker"`
	Resolver  ResolverConfig  `toml:"resolver"`
	Publisher PublisherConfig `toml:"publisher"`
	Web       WebConfig       `toml:"web"`
	Results   ResultsConfig   `toml:"results"`
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
}

// PathsConfig holds filesystem locations for the external tool and media.
type PathsConfig struct {
	// Working directory of the demo-analysis tool (contains out/cli.js).
	CSDMDir string `toml:"csdm_dir"`

	// Directory demos are downloaded into.
	DemoDir string `toml:"demo_dir"`

	// Directory the recorder writes finished videos into.
	OutputDir string `toml:"output_dir"`

	// Extension of produced media files.
	ArtifactExt string `toml:"artifact_ext"`
}

// RecorderConfig holds the recorder control-channel settings.
type RecorderConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`

	// Grace period after stop-record for the recorder to finish the file.
	SaveGrace time.Duration `toml:"save_grace"`
}

// WorkerConfig holds the pipeline timing knobs.
type WorkerConfig struct {
	// Name of the game process to watch for.
	GameProcess string `toml:"game_process"`

	// Bounded wait for the analysis tool to exit.
	AnalysisTimeout time.Duration `toml:"analysis_timeout"`

	// Bounded wait for the game process to appear after launch.
	ReadyTimeout time.Duration `toml:"ready_timeout"`

	// Fixed settle delay after the game appears, before recording starts.
	// Compensates for engine load time; deliberately not computed.
	SettleDelay time.Duration `toml:"settle_delay"`

	// Bounded wait for the game process to disappear again.
	FinishTimeout time.Duration `toml:"finish_timeout"`

	// Poll intervals for the two process waits.
	ReadyPollInterval  time.Duration `toml:"ready_poll_interval"`
	FinishPollInterval time.Duration `toml:"finish_poll_interval"`

	// Pause between jobs before the status resets to idle.
	IdlePause time.Duration `toml:"idle_pause"`
}

// ResolverConfig holds the share-code resolution service settings.
type ResolverConfig struct {
	// Ordered list of resolver endpoints; the first that answers wins.
	Endpoints []string `toml:"endpoints"`

	// Request timeout for resolution and download calls.
	RequestTimeout time.Duration `toml:"request_timeout"`

	// Optional platform API key for best-effort display-name lookups.
	SteamAPIKey string `toml:"steam_api_key"`
}

// PublisherConfig holds the video hosting upload settings.
type PublisherConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Token       string        `toml:"token"`
	Description string        `toml:"description"`
	Privacy     string        `toml:"privacy"`
	Timeout     time.Duration `toml:"timeout"`

	// Default publish mode when a submission does not specify one.
	UploadByDefault bool `toml:"upload_by_default"`
}

// WebConfig holds the submission/status HTTP server settings.
type WebConfig struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// ResultsConfig holds the durable result-log settings.
type ResultsConfig struct {
	Path     string `toml:"path"`
	Capacity int    `toml:"capacity"`
}

// DatabaseConfig holds the optional stage-timing stats database settings.
// Stats collection is disabled when the DSN is empty.
type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			CSDMDir:     "csdm",
			DemoDir:     "demos",
			OutputDir:   "recordings",
			ArtifactExt: ".mp4",
		},
		Recorder: RecorderConfig{
			Host:      "localhost",
			Port:      4455,
			SaveGrace: 10 * time.Second,
		},
		Worker: WorkerConfig{
			GameProcess:        "cs2.exe",
			AnalysisTimeout:    15 * time.Minute,
			ReadyTimeout:       60 * time.Second,
			SettleDelay:        20 * time.Second,
			FinishTimeout:      1800 * time.Second,
			ReadyPollInterval:  1 * time.Second,
			FinishPollInterval: 2 * time.Second,
			IdlePause:          5 * time.Second,
		},
		Resolver: ResolverConfig{
			Endpoints: []string{
				"https://csreplay.moon-moon.tech/decode",
				"https://csreplay2.moon-moon.tech/decode",
			},
			RequestTimeout: 30 * time.Second,
		},
		Publisher: PublisherConfig{
			Description:     "Suspected cheater highlights.",
			Privacy:         "unlisted",
			Timeout:         10 * time.Minute,
			UploadByDefault: true,
		},
		Web: WebConfig{
			Address: "0.0.0.0",
			Port:    5001,
		},
		Results: ResultsConfig{
			Path:     "results.json",
			Capacity: 250,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration with the following precedence:
// defaults, then the config file if one is specified.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Paths.CSDMDir == "" {
		return fmt.Errorf("paths csdm_dir must be specified")
	}
	if c.Paths.DemoDir == "" {
		return fmt.Errorf("paths demo_dir must be specified")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths output_dir must be specified")
	}
	if c.Paths.ArtifactExt == "" {
		return fmt.Errorf("paths artifact_ext must be specified")
	}

	if c.Recorder.Host == "" {
		return fmt.Errorf("recorder host must be specified")
	}
	if c.Recorder.Port <= 0 || c.Recorder.Port > 65535 {
		return fmt.Errorf("recorder port must be between 1 and 65535")
	}

	if c.Worker.GameProcess == "" {
		return fmt.Errorf("worker game_process must be specified")
	}
	if c.Worker.AnalysisTimeout <= 0 {
		return fmt.Errorf("worker analysis_timeout must be positive")
	}
	if c.Worker.ReadyTimeout <= 0 {
		return fmt.Errorf("worker ready_timeout must be positive")
	}
	if c.Worker.FinishTimeout <= 0 {
		return fmt.Errorf("worker finish_timeout must be positive")
	}
	if c.Worker.SettleDelay < 0 {
		return fmt.Errorf("worker settle_delay must not be negative")
	}
	if c.Worker.ReadyPollInterval <= 0 {
		return fmt.Errorf("worker ready_poll_interval must be positive")
	}
	if c.Worker.FinishPollInterval <= 0 {
		return fmt.Errorf("worker finish_poll_interval must be positive")
	}

	if len(c.Resolver.Endpoints) == 0 {
		return fmt.Errorf("resolver endpoints must not be empty")
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535")
	}

	if c.Results.Path == "" {
		return fmt.Errorf("results path must be specified")
	}
	if c.Results.Capacity <= 0 {
		return fmt.Errorf("results capacity must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
