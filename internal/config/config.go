package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DefaultProfile = "default"
	EnvPrefix      = "AUDIOBRIDGE"
)

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Audio        *AudioConfig       `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`

	// Name of the profile this config was resolved from
	Profile string `mapstructure:"-" yaml:"-"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend" validate:"omitempty,oneof=auto simulated pipewire"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"`
}

type RecordingConfig struct {
	Directory        string        `mapstructure:"directory" yaml:"directory"`
	Format           string        `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=wav flac ogg"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval" validate:"omitempty,gte=10ms"`
	MeteringEnabled  *bool         `mapstructure:"metering_enabled" yaml:"metering_enabled,omitempty"`
}

// Metering reports whether metering is on; unset means on
func (r RecordingConfig) Metering() bool {
	return r.MeteringEnabled == nil || *r.MeteringEnabled
}

type PlaybackConfig struct {
	// Preferred local players, tried in order
	Players []string `mapstructure:"players" yaml:"players"`
	// How long the simulated backend pretends a track plays
	SimulatedDuration time.Duration `mapstructure:"simulated_duration" yaml:"simulated_duration" validate:"omitempty,gte=0"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port" yaml:"port" validate:"omitempty,numeric"`
	EventBuffer int    `mapstructure:"event_buffer" yaml:"event_buffer" validate:"omitempty,gte=1"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		Backend:    "auto",
		SampleRate: 48000,
	},
	Recording: RecordingConfig{
		Directory:        filepath.Join(os.Getenv("HOME"), "Audio", "Recordings"),
		Format:           "wav",
		ProgressInterval: 250 * time.Millisecond,
		MeteringEnabled:  boolPtr(true),
	},
	Playback: PlaybackConfig{
		Players:           []string{"pw-play", "ffplay", "mpv", "aplay"},
		SimulatedDuration: 2 * time.Second,
	},
	Server: ServerConfig{
		Port:        "8080",
		EventBuffer: 64,
	},
	Profile: DefaultProfile,
}

var validate = validator.New()

// Default returns a copy of the built-in configuration
func Default() *Config {
	cfg := defaultConfig
	cfg.Playback.Players = append([]string(nil), defaultConfig.Playback.Players...)
	cfg.Recording.MeteringEnabled = boolPtr(defaultConfig.Recording.Metering())
	return &cfg
}

// LoadOrDefault loads the profile from configFile, falling back to the
// built-in configuration when the file does not exist
func LoadOrDefault(configFile, profile string) (*Config, error) {
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		slog.Debug("Config file not found, using defaults", "path", configFile)
		return Default(), nil
	}
	return LoadWithProfile(configFile, profile)
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	v := newViper(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	return resolve(v, profile)
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// resolve picks the requested profile out of an already-read viper instance
func resolve(v *viper.Viper, profile string) (*Config, error) {
	rootConfig, err := ValidateConfigurationFormat(v)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = DefaultProfile
	}

	selected, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	// Global audio settings sit under every profile
	result := Default()
	if rootConfig.Audio != nil {
		if rootConfig.Audio.Backend != "" {
			result.Audio.Backend = rootConfig.Audio.Backend
		}
		if rootConfig.Audio.SampleRate != 0 {
			result.Audio.SampleRate = rootConfig.Audio.SampleRate
		}
	}

	if configName != DefaultProfile {
		if defaultProfile, ok := rootConfig.Configs[DefaultProfile]; ok {
			result = mergeConfigs(result, defaultProfile)
		}
	}
	result = mergeConfigs(result, selected)
	result.Profile = configName

	result.Recording.Directory = expandPath(result.Recording.Directory)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
	}

	return result, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Recording.Directory == "" {
		return fmt.Errorf("recording.directory is required")
	}
	return nil
}

// mergeConfigs overlays every field profile sets on base
func mergeConfigs(base, profile *Config) *Config {
	result := *base
	result.Playback.Players = append([]string(nil), base.Playback.Players...)

	if profile == nil {
		return &result
	}

	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
	}
	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
	}

	if profile.Recording.Directory != "" {
		result.Recording.Directory = profile.Recording.Directory
	}
	if profile.Recording.Format != "" {
		result.Recording.Format = profile.Recording.Format
	}
	if profile.Recording.ProgressInterval != 0 {
		result.Recording.ProgressInterval = profile.Recording.ProgressInterval
	}
	if profile.Recording.MeteringEnabled != nil {
		result.Recording.MeteringEnabled = boolPtr(*profile.Recording.MeteringEnabled)
	}

	if len(profile.Playback.Players) > 0 {
		result.Playback.Players = append([]string(nil), profile.Playback.Players...)
	}
	if profile.Playback.SimulatedDuration != 0 {
		result.Playback.SimulatedDuration = profile.Playback.SimulatedDuration
	}

	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}
	if profile.Server.EventBuffer != 0 {
		result.Server.EventBuffer = profile.Server.EventBuffer
	}

	return &result
}

// ValidateConfigurationFormat unmarshals and validates the root document
func ValidateConfigurationFormat(v *viper.Viper) (*RootConfig, error) {
	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section cannot be empty")
	}

	for name, profile := range rootConfig.Configs {
		if profile == nil {
			return nil, fmt.Errorf("config '%s' is empty", name)
		}
		if err := validate.Struct(profile); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", name, err)
		}
	}

	if rootConfig.Audio != nil {
		if err := validate.Struct(rootConfig.Audio); err != nil {
			return nil, fmt.Errorf("invalid audio section: %w", err)
		}
	}

	return &rootConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if !v.IsSet("configs." + newActiveConfig) {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// ListProfiles returns the profile names defined in configFile
func ListProfiles(configFile string) ([]string, error) {
	v := newViper(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	rootConfig, err := ValidateConfigurationFormat(v)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rootConfig.Configs))
	for name := range rootConfig.Configs {
		names = append(names, name)
	}
	return names, nil
}

// Watch reloads the profile whenever configFile changes on disk and hands
// the new configuration to onChange. Reload errors are logged and the
// previous configuration stays in effect.
func Watch(configFile, profile string, onChange func(*Config)) error {
	v := newViper(configFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		slog.Info("Config file changed, reloading", "path", e.Name, "op", e.Op.String())
		cfg, err := resolve(v, profile)
		if err != nil {
			slog.Error("Config reload failed, keeping previous configuration", "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

func boolPtr(b bool) *bool {
	return &b
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
