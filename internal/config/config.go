package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/audiolibrelab/wavrecorder/internal/capture"
)

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days,omitempty"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port,omitempty"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Logging      *LoggingConfig            `mapstructure:"logging,omitempty" yaml:"logging,omitempty"`
	Server       *ServerConfig             `mapstructure:"server,omitempty" yaml:"server,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging,omitempty"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server,omitempty"`

	// Name of the profile this config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// Inheritance values are "inherited" or "profile-specific"
type InheritanceInfo struct {
	Audio struct {
		Backend       string
		Device        string
		SampleRate    string
		BitsPerSample string
		Channels      string
	}
	Capture struct {
		HalfBufferMs  string
		StopTimeoutMs string
	}
	Output struct {
		Directory string
	}
}

type AudioConfig struct {
	Backend       string  `mapstructure:"backend" yaml:"backend"` // "malgo", "synthetic", "auto"
	Device        string  `mapstructure:"device" yaml:"device,omitempty"`
	SampleRate    int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	BitsPerSample int     `mapstructure:"bits_per_sample" yaml:"bits_per_sample"`
	Channels      int     `mapstructure:"channels" yaml:"channels"`
	ToneHz        float64 `mapstructure:"tone_hz" yaml:"tone_hz,omitempty"` // synthetic backend only
}

type CaptureConfig struct {
	HalfBufferMs  int  `mapstructure:"half_buffer_ms" yaml:"half_buffer_ms"`
	StopTimeoutMs int  `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	BytewisePatch bool `mapstructure:"bytewise_patch" yaml:"bytewise_patch"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:       "auto",
		SampleRate:    16000,
		BitsPerSample: 16,
		Channels:      1,
		ToneHz:        440,
	},
	Capture: CaptureConfig{
		HalfBufferMs:  64,
		StopTimeoutMs: 2000,
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "Recordings"),
	},
	Logging: LoggingConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
	Server: ServerConfig{
		Port: 8080,
	},
	Profile: "default",
}

// Default returns the built-in configuration used when no config file exists
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// DefaultPath returns the default location of the config file
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "wavrecorder.yaml")
}

// Format returns the PCM format recordings are captured in
func (c *Config) Format() capture.Format {
	return capture.Format{
		SampleRate:    c.Audio.SampleRate,
		Channels:      c.Audio.Channels,
		BitsPerSample: c.Audio.BitsPerSample,
	}
}

// HalfBuffer returns the audio duration held by one buffer half
func (c *Config) HalfBuffer() time.Duration {
	return time.Duration(c.Capture.HalfBufferMs) * time.Millisecond
}

// StopTimeout returns how long pause and stop wait for the consumer
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Capture.StopTimeoutMs) * time.Millisecond
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}
	selectedConfig := profileToConfig(selectedProfile)

	// Profiles inherit unset fields from the file's default profile, then from built-in defaults
	base := Default()
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			base = mergeConfigs(base, profileToConfig(defaultProfile))
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)
	selectedConfig.Profile = configName

	// Global recordings directory takes priority over profile-specific directory
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
		selectedConfig.Inheritance.Output.Directory = "inherited"
	}

	if rootConfig.Logging != nil {
		mergeLogging(&selectedConfig.Logging, rootConfig.Logging)
	}
	if rootConfig.Server != nil && rootConfig.Server.Port != 0 {
		selectedConfig.Server.Port = rootConfig.Server.Port
	}

	// Expand tilde in paths
	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Logging.File = expandPath(selectedConfig.Logging.File)

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Separate viper instance so the file is rewritten with only its own keys
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, exists := rootConfig.Configs[newActiveConfig]; !exists {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func profileToConfig(profile *ConfigProfile) *Config {
	if profile == nil {
		return &Config{}
	}
	return &Config{
		Audio:   profile.Audio,
		Capture: profile.Capture,
		Output:  profile.Output,
	}
}

// mergeConfigs returns base overridden by every field set in profile.
// Zero values in profile mean "not set"; bytewise_patch stays on once either enables it.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{Inheritance: &InheritanceInfo{}}

	if base != nil {
		result.Audio = base.Audio
		result.Capture = base.Capture
		result.Output = base.Output
		result.Logging = base.Logging
		result.Server = base.Server
		result.Profile = base.Profile

		// Mark as inherited by default
		result.Inheritance.Audio.Backend = "inherited"
		result.Inheritance.Audio.Device = "inherited"
		result.Inheritance.Audio.SampleRate = "inherited"
		result.Inheritance.Audio.BitsPerSample = "inherited"
		result.Inheritance.Audio.Channels = "inherited"
		result.Inheritance.Capture.HalfBufferMs = "inherited"
		result.Inheritance.Capture.StopTimeoutMs = "inherited"
		result.Inheritance.Output.Directory = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = "profile-specific"
	}
	if profile.Audio.Device != "" {
		result.Audio.Device = profile.Audio.Device
		result.Inheritance.Audio.Device = "profile-specific"
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		result.Inheritance.Audio.SampleRate = "profile-specific"
	}
	if profile.Audio.BitsPerSample != 0 {
		result.Audio.BitsPerSample = profile.Audio.BitsPerSample
		result.Inheritance.Audio.BitsPerSample = "profile-specific"
	}
	if profile.Audio.Channels != 0 {
		result.Audio.Channels = profile.Audio.Channels
		result.Inheritance.Audio.Channels = "profile-specific"
	}
	if profile.Audio.ToneHz != 0 {
		result.Audio.ToneHz = profile.Audio.ToneHz
	}

	if profile.Capture.HalfBufferMs != 0 {
		result.Capture.HalfBufferMs = profile.Capture.HalfBufferMs
		result.Inheritance.Capture.HalfBufferMs = "profile-specific"
	}
	if profile.Capture.StopTimeoutMs != 0 {
		result.Capture.StopTimeoutMs = profile.Capture.StopTimeoutMs
		result.Inheritance.Capture.StopTimeoutMs = "profile-specific"
	}
	result.Capture.BytewisePatch = result.Capture.BytewisePatch || profile.Capture.BytewisePatch

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}

	return result
}

func mergeLogging(dst *LoggingConfig, src *LoggingConfig) {
	if src.File != "" {
		dst.File = src.File
	}
	if src.MaxSizeMB != 0 {
		dst.MaxSizeMB = src.MaxSizeMB
	}
	if src.MaxBackups != 0 {
		dst.MaxBackups = src.MaxBackups
	}
	if src.MaxAgeDays != 0 {
		dst.MaxAgeDays = src.MaxAgeDays
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	// Set environment variable prefix
	v.SetEnvPrefix("WAVRECORDER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required and cannot be empty")
	}

	if rootConfig.ActiveConfig != "" {
		if _, exists := rootConfig.Configs[rootConfig.ActiveConfig]; !exists {
			return nil, fmt.Errorf("active_config '%s' does not name a profile in configs", rootConfig.ActiveConfig)
		}
	}

	for configName, configProfile := range rootConfig.Configs {
		if err := validateProfile(configProfile, fmt.Sprintf("configs.%s", configName)); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	if rootConfig.Server != nil && (rootConfig.Server.Port < 0 || rootConfig.Server.Port > 65535) {
		return nil, fmt.Errorf("server.port must be between 1 and 65535, got: %d", rootConfig.Server.Port)
	}

	return &rootConfig, nil
}

// validateProfile checks the fields a profile sets; unset fields are inherited later
func validateProfile(profile *ConfigProfile, prefix string) error {
	if profile == nil {
		return fmt.Errorf("%s: profile cannot be empty", prefix)
	}

	if b := profile.Audio.Backend; b != "" && !isValidBackend(b) {
		return fmt.Errorf("%s.audio: 'backend' must be 'auto', 'malgo' or 'synthetic', got: %s", prefix, b)
	}
	if profile.Audio.SampleRate < 0 {
		return fmt.Errorf("%s.audio: 'sample_rate' must be > 0, got: %d", prefix, profile.Audio.SampleRate)
	}
	if bits := profile.Audio.BitsPerSample; bits != 0 && !isValidBitDepth(bits) {
		return fmt.Errorf("%s.audio: 'bits_per_sample' must be 8, 16, 24 or 32, got: %d", prefix, bits)
	}
	if profile.Audio.Channels < 0 {
		return fmt.Errorf("%s.audio: 'channels' must be > 0, got: %d", prefix, profile.Audio.Channels)
	}
	if profile.Audio.ToneHz < 0 {
		return fmt.Errorf("%s.audio: 'tone_hz' must be >= 0, got: %.1f", prefix, profile.Audio.ToneHz)
	}
	if profile.Capture.HalfBufferMs < 0 {
		return fmt.Errorf("%s.capture: 'half_buffer_ms' must be > 0, got: %d", prefix, profile.Capture.HalfBufferMs)
	}
	if profile.Capture.StopTimeoutMs < 0 {
		return fmt.Errorf("%s.capture: 'stop_timeout_ms' must be > 0, got: %d", prefix, profile.Capture.StopTimeoutMs)
	}

	return nil
}

// validateConfig checks a fully resolved config
func validateConfig(cfg *Config) error {
	if !isValidBackend(cfg.Audio.Backend) {
		return fmt.Errorf("audio.backend must be 'auto', 'malgo' or 'synthetic', got: %s", cfg.Audio.Backend)
	}
	if err := cfg.Format().Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if cfg.Capture.HalfBufferMs <= 0 {
		return fmt.Errorf("capture.half_buffer_ms must be > 0, got: %d", cfg.Capture.HalfBufferMs)
	}
	if cfg.Capture.StopTimeoutMs <= 0 {
		return fmt.Errorf("capture.stop_timeout_ms must be > 0, got: %d", cfg.Capture.StopTimeoutMs)
	}
	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	return nil
}

func isValidBackend(backend string) bool {
	switch strings.ToLower(backend) {
	case "auto", "malgo", "synthetic":
		return true
	}
	return false
}

func isValidBitDepth(bits int) bool {
	switch bits {
	case 8, 16, 24, 32:
		return true
	}
	return false
}
