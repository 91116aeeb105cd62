// Package config defines catalogd's runtime configuration surface and
// the defaults/env/flag layering used to populate it. Binding lives in
// cli (which owns the cobra/viper wiring); this package only describes
// the shape of the configuration and its defaults.
package config

import (
	"io"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every catalogd option named in its operating parameters:
// listen addresses, record lifetime/expiry policy, worker-pool and
// request-timeout bounds, and the on-disk layout for history and
// outgoing forwarding.
type Config struct {
	Port      int    `yaml:"port"`
	SSLPort   int    `yaml:"ssl_port"`
	SSLCert   string `yaml:"ssl_cert"`
	SSLKey    string `yaml:"ssl_key"`
	Interface string `yaml:"interface"`

	Lifetime      time.Duration `yaml:"lifetime"`
	CleanInterval time.Duration `yaml:"clean_interval"`

	ChildProcsMax         int           `yaml:"child_procs_max"`
	ChildProcsTimeout     time.Duration `yaml:"child_procs_timeout"`
	StreamingProcsTimeout time.Duration `yaml:"streaming_procs_timeout"`

	MaxServerSize int64  `yaml:"max_server_size"`
	HistoryDir    string `yaml:"history_dir"`

	// UpdateRateLimit bounds accepted updates per second across all
	// producers (burst UpdateRateBurst), protecting the event loop from
	// a runaway or misbehaving producer. 0 disables limiting.
	UpdateRateLimit int `yaml:"update_rate_limit"`
	UpdateRateBurst int `yaml:"update_rate_burst"`

	OutgoingHostList []string      `yaml:"outgoing_host_list"`
	OutgoingTimeout  time.Duration `yaml:"outgoing_timeout"`
}

// defaults mirrors the historical catalog daemon's compiled-in
// constants, now ordinary config fields per the redesign note that
// folds hardcoded limits into configuration.
var defaults = Config{
	Port:                  4242,
	SSLPort:               0,
	Interface:             "",
	Lifetime:              1800 * time.Second,
	CleanInterval:         60 * time.Second,
	ChildProcsMax:         50,
	ChildProcsTimeout:     60 * time.Second,
	StreamingProcsTimeout: 3600 * time.Second,
	MaxServerSize:         0, // 0 = no clamp
	HistoryDir:            "catalog.history",
	UpdateRateLimit:       2000,
	UpdateRateBurst:       200,
	OutgoingTimeout:       5 * time.Second,
}

// BindDefaults registers defaults on v so that unset flags/env/file
// keys resolve to the historical catalog daemon's values.
func BindDefaults(v *viper.Viper) {
	v.SetDefault("port", defaults.Port)
	v.SetDefault("ssl_port", defaults.SSLPort)
	v.SetDefault("ssl_cert", defaults.SSLCert)
	v.SetDefault("ssl_key", defaults.SSLKey)
	v.SetDefault("interface", defaults.Interface)
	v.SetDefault("lifetime", defaults.Lifetime)
	v.SetDefault("clean_interval", defaults.CleanInterval)
	v.SetDefault("child_procs_max", defaults.ChildProcsMax)
	v.SetDefault("child_procs_timeout", defaults.ChildProcsTimeout)
	v.SetDefault("streaming_procs_timeout", defaults.StreamingProcsTimeout)
	v.SetDefault("max_server_size", defaults.MaxServerSize)
	v.SetDefault("history_dir", defaults.HistoryDir)
	v.SetDefault("update_rate_limit", defaults.UpdateRateLimit)
	v.SetDefault("update_rate_burst", defaults.UpdateRateBurst)
	v.SetDefault("outgoing_host_list", []string{})
	v.SetDefault("outgoing_timeout", defaults.OutgoingTimeout)
}

// FromViper reads a fully layered viper instance (flags > env > file >
// defaults) into a Config.
func FromViper(v *viper.Viper) Config {
	return Config{
		Port:                  v.GetInt("port"),
		SSLPort:               v.GetInt("ssl_port"),
		SSLCert:               v.GetString("ssl_cert"),
		SSLKey:                v.GetString("ssl_key"),
		Interface:             v.GetString("interface"),
		Lifetime:              v.GetDuration("lifetime"),
		CleanInterval:         v.GetDuration("clean_interval"),
		ChildProcsMax:         v.GetInt("child_procs_max"),
		ChildProcsTimeout:     v.GetDuration("child_procs_timeout"),
		StreamingProcsTimeout: v.GetDuration("streaming_procs_timeout"),
		MaxServerSize:         v.GetInt64("max_server_size"),
		HistoryDir:            v.GetString("history_dir"),
		UpdateRateLimit:       v.GetInt("update_rate_limit"),
		UpdateRateBurst:       v.GetInt("update_rate_burst"),
		OutgoingHostList:      v.GetStringSlice("outgoing_host_list"),
		OutgoingTimeout:       v.GetDuration("outgoing_timeout"),
	}
}

// Dump writes cfg to w as YAML.
func Dump(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(cfg)
}
