package config

import (
	"strings"
	"time"

	logx "localnotify/pkg/logx"
)

// Config is the whole file. Every section may be omitted; Default fills the gaps.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging  LoggingConfig  `json:"logging" split_words:"true"`
	Platform PlatformConfig `json:"platform" split_words:"true"`
	Client   ClientConfig   `json:"client" split_words:"true"`
	Host     HostConfig     `json:"host" split_words:"true"`
	Storage  StorageConfig  `json:"storage" split_words:"true"`
}

type LoggingConfig struct {
	Level   string        `json:"level" split_words:"true" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool          `json:"console" split_words:"true"`
	File    LogFileConfig `json:"file" split_words:"true"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled" split_words:"true"`
	Path    string `json:"path" split_words:"true" validate:"required_if=Enabled true"`
}

// PlatformConfig describes what the notification host can do.
//
// DiscreteRepeat forces bucketed repeat intervals. It is implied by os "ios",
// whose scheduler only repeats every minute/hour/day/week/month.
type PlatformConfig struct {
	OS             string `json:"os" split_words:"true" validate:"omitempty,oneof=ios android linux darwin windows"`
	DiscreteRepeat bool   `json:"discrete_repeat" split_words:"true"`
}

type ClientConfig struct {
	// RequestTimeout bounds the blocking List/Get helpers. "0s" waits forever.
	RequestTimeout string `json:"request_timeout" split_words:"true"`
}

// HostConfig controls the built-in host used by the CLI and tests.
type HostConfig struct {
	AutoGrantPermission bool    `json:"auto_grant_permission" split_words:"true"`
	DeliverRatePerSec   float64 `json:"deliver_rate_per_sec" split_words:"true" validate:"gte=0"`
	DeliverBurst        int     `json:"deliver_burst" split_words:"true" validate:"gte=0"`
	// Timezone is an IANA name used for calendar repeats (day/week/month). Empty means local.
	Timezone string `json:"timezone" split_words:"true"`
}

type StorageConfig struct {
	Driver      string `json:"driver" split_words:"true" validate:"oneof=memory file sqlite"`
	Path        string `json:"path" split_words:"true" validate:"required_unless=Driver memory"`
	BusyTimeout string `json:"busy_timeout" split_words:"true"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Client:  ClientConfig{RequestTimeout: "10s"},
		Host: HostConfig{
			AutoGrantPermission: true,
			DeliverRatePerSec:   5,
			DeliverBurst:        5,
		},
		Storage: StorageConfig{Driver: "memory", BusyTimeout: "5s"},
	}
}

// DiscreteRepeat reports whether repeat intervals must be sent as buckets.
func (c *Config) DiscreteRepeat() bool {
	return c.Platform.DiscreteRepeat || strings.EqualFold(strings.TrimSpace(c.Platform.OS), "ios")
}

// RequestTimeout is client.request_timeout, already checked by Validate.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := ParseDurationField("client.request_timeout", c.Client.RequestTimeout)
	return d
}

// BusyTimeout is storage.busy_timeout, already checked by Validate.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
	return d
}

// Location resolves host.timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Host.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// LogConfig maps the logging section onto the logging service.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    strings.TrimSpace(c.Logging.File.Path),
		},
	}
}
