package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	activeMu sync.Mutex
	active   *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/snapvault/")
	v.AddConfigPath("$HOME/.snapvault/")

	// Environment variable overrides, e.g. SNAPVAULT_PIPELINE_OCR_WORKERS
	v.SetEnvPrefix("SNAPVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	activeMu.Lock()
	active = v
	activeMu.Unlock()

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if strings.TrimSpace(config.Storage.Root) == "" {
		return fmt.Errorf("storage root must not be empty")
	}

	p := config.Pipeline
	if p.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate: %d (must be positive)", p.FrameRate)
	}
	if p.Padding < 0 {
		return fmt.Errorf("invalid padding: %d (must not be negative)", p.Padding)
	}
	if p.MinWordLength < 1 {
		return fmt.Errorf("invalid min word length: %d", p.MinWordLength)
	}
	if p.MergeMode != "single_pass" && p.MergeMode != "fixpoint" {
		return fmt.Errorf("invalid merge mode: %s (must be single_pass or fixpoint)", p.MergeMode)
	}
	if p.OCRWorkers < 1 {
		return fmt.Errorf("invalid ocr workers: %d (must be at least 1)", p.OCRWorkers)
	}
	if p.Blur.Radius <= 0 || p.Blur.Power <= 0 {
		return fmt.Errorf("invalid blur kernel: radius=%d power=%d", p.Blur.Radius, p.Blur.Power)
	}
	if p.Denoise.HighpassHz <= 0 || p.Denoise.LowpassHz <= p.Denoise.HighpassHz {
		return fmt.Errorf("invalid speech band: %d-%d Hz", p.Denoise.HighpassHz, p.Denoise.LowpassHz)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests/min", config.RateLimit.RequestsPerMin)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// revisions are reported through onError and otherwise ignored.
func Watch(callback func(*Config), onError func(error)) error {
	activeMu.Lock()
	v := active
	activeMu.Unlock()

	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
