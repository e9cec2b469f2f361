package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces environment overrides, e.g. LOCALNOTIFY_STORAGE_DRIVER.
const EnvPrefix = "LOCALNOTIFY"

// ApplyEnv overwrites cfg with any LOCALNOTIFY_* variables that are set.
// Unset variables leave the file value alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}
