package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type PeerConfig struct {
	RelayURL     string        `mapstructure:"relay_url"`
	STUNURLs     []string      `mapstructure:"stun_urls"`
	OutDir       string        `mapstructure:"out_dir"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	AutoAccept   bool          `mapstructure:"yes"`
	SendPath     string        `mapstructure:"send"`
	LogLevel     string        `mapstructure:"log_level"`
}

// LoadPeer reads config/peer.<CONFIG_ENV>.yaml and lets flags override it.
func LoadPeer(flags *pflag.FlagSet) (*PeerConfig, error) {
	v, fileName := newViper("peer")

	v.SetDefault("relay_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("out_dir", ".")
	v.SetDefault("stall_timeout", "30s")
	v.SetDefault("send_timeout", "30s")
	v.SetDefault("yes", false)
	v.SetDefault("send", "")
	v.SetDefault("log_level", "info")

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	readFile(v, fileName)

	var cfg PeerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse peer config: %w", err)
	}
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay_url is required")
	}
	return &cfg, nil
}
