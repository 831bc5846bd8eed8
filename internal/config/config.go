// Package config defines the router's YAML-backed configuration, per
// spec §6 and its [EXPANSION] additions. Grounded on the teacher's
// config.Config/DefaultConfig conventions: one struct tree, one
// defaults constructor, one Loader.
package config

import "time"

// Direction selects which half of the RouteProfile snapshot an
// instance consumes and which authentication direction it enforces.
type Direction string

const (
	DirectionRemoteTerminated Direction = "remote-terminated"
	DirectionRemoteOriginated Direction = "remote-originated"
)

// Config is the complete router configuration, spec §6 plus
// [EXPANSION] ambient-stack sections.
type Config struct {
	Direction Direction `yaml:"direction"`

	ListenAddress      string `yaml:"listenAddress"`
	AdminListenAddress string `yaml:"adminListenAddress"`

	DatabaseKind       string        `yaml:"databaseKind"` // None, MySQL, Postgres, File
	DatabaseConnection string        `yaml:"databaseConnection"`
	DatabaseRefresh    time.Duration `yaml:"databaseRefresh"`

	ResponseTimeout time.Duration `yaml:"responseTimeout"`
	WaitOnForward   bool          `yaml:"waitOnForward"`

	RemoteTerminatedURL string `yaml:"remoteTerminatedUrl"`
	RemoteOriginatedURL string `yaml:"remoteOriginatedUrl"`

	AllowedSkewSec  int           `yaml:"allowedSkewSec"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`

	NonceCache NonceCacheConfig `yaml:"nonceCache"`
	Logging    LoggingConfig    `yaml:"logging"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

// NonceCacheConfig controls the opt-in replay-detection LRU of §4.10.
type NonceCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// LoggingConfig mirrors the teacher's logging section, re-scoped to
// zap/lumberjack construction instead of a format string.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"` // "stdout" or a file path
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// DispatchConfig sizes the fire-and-forget worker pool of §4.9.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// DefaultConfig returns a Config with sensible defaults, per the
// teacher's DefaultConfig convention.
func DefaultConfig() *Config {
	return &Config{
		Direction:          DirectionRemoteTerminated,
		ListenAddress:      ":8443",
		AdminListenAddress: ":9090",
		DatabaseKind:       "File",
		DatabaseRefresh:    30 * time.Second,
		ResponseTimeout:    10 * time.Second,
		WaitOnForward:      false,
		AllowedSkewSec:     30,
		RefreshInterval:    30 * time.Second,
		NonceCache: NonceCacheConfig{
			Enabled: false,
			Size:    4096,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dispatch: DispatchConfig{
			Workers:   8,
			QueueSize: 1024,
		},
	}
}
