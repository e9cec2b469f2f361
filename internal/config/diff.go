package config

import (
	"reflect"

	logx "localnotify/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		fields  []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Platform != newCfg.Platform {
		changed = append(changed, "platform")
		fields = append(fields, logx.Bool("platform.discrete_repeat", newCfg.DiscreteRepeat()))
	}
	if oldCfg.Client != newCfg.Client {
		changed = append(changed, "client")
		fields = append(fields, logx.String("client.request_timeout", newCfg.Client.RequestTimeout))
	}
	if oldCfg.Host != newCfg.Host {
		changed = append(changed, "host")
		fields = append(fields,
			logx.Float64("host.deliver_rate_per_sec", newCfg.Host.DeliverRatePerSec),
			logx.Int("host.deliver_burst", newCfg.Host.DeliverBurst),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		fields = append(fields, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	return changed, fields
}

// RestartRequired reports whether a change cannot be applied to a running
// process. Only logging is hot-reloadable.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return true
		}
	}
	return false
}
