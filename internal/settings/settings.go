// Package settings loads jiutaid's daemon settings file with
// github.com/spf13/viper and watches it for live changes with
// github.com/fsnotify/fsnotify, the teacher's chosen config stack
// generalized from a single static file to this daemon's settings
// (SPEC_FULL.md's ambient stack).
package settings

import (
	"errors"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Settings holds jiutaid's top-level tunables, bound from a settings
// file plus environment overrides.
type Settings struct {
	// ConfigDir is the directory scanned for dispatcher service
	// config XML files.
	ConfigDir string `mapstructure:"config_dir"`
	// SentinelFile guards against running more than one daemon
	// instance at a time.
	SentinelFile string `mapstructure:"sentinel_file"`
	// JiukunMaxOrder bounds the largest single allocation the buddy
	// allocator will satisfy, expressed as a page order.
	JiukunMaxOrder uint32 `mapstructure:"jiukun_max_order"`
	// JiukunNoGrow disables adding further zones once the first is
	// exhausted.
	JiukunNoGrow bool `mapstructure:"jiukun_no_grow"`
	// LogLevel is one of debug, info, warn, error. jiutaid loads it
	// but takes its log level from the -T flag instead.
	LogLevel string `mapstructure:"log_level"`
	// LogJSON selects structured JSON log output.
	LogJSON bool `mapstructure:"log_json"`
	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Defaults returns the settings a freshly installed daemon should
// start from.
func Defaults() Settings {
	return Settings{
		ConfigDir:      "/etc/jiutai/dispatcher.d",
		SentinelFile:   "/var/run/jiutaid.pid",
		JiukunMaxOrder: 11,
		LogLevel:       "info",
		MetricsAddr:    ":9090",
	}
}

// Loader wraps a *viper.Viper bound to one settings file, with its
// defaults pre-populated.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader for path (any format viper supports:
// yaml, json, toml, ...). Call Load to read it.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("JIUTAI")
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("config_dir", d.ConfigDir)
	v.SetDefault("sentinel_file", d.SentinelFile)
	v.SetDefault("jiukun_max_order", d.JiukunMaxOrder)
	v.SetDefault("jiukun_no_grow", d.JiukunNoGrow)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	return &Loader{v: v}
}

// Load reads the settings file (if present; missing is not an error,
// defaults apply) and unmarshals it into a Settings value.
func (l *Loader) Load() (Settings, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return Settings{}, err
		}
	}
	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// WatchAndReload calls onChange with the newly loaded Settings every
// time the underlying file changes on disk, via fsnotify (the same
// library the dispatcher's config directory watcher uses).
func (l *Loader) WatchAndReload(onChange func(Settings, error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		s, err := l.Load()
		onChange(s, err)
	})
	l.v.WatchConfig()
}
