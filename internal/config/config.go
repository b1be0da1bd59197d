// Package config loads pcapwire settings using viper: defaults, then an
// optional YAML file, then PCAPWIRE_* environment variables, then flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PCAPWIRE"

// Config the complete configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Interfaces InterfacesConfig `mapstructure:"interfaces"`
	Header     HeaderConfig     `mapstructure:"header"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type InterfacesConfig struct {
	// ExcludeLinkLayer nil means use the platform default
	ExcludeLinkLayer *bool `mapstructure:"exclude_link_layer"`
}

// HeaderConfig values used when writing a new global header
type HeaderConfig struct {
	Snaplen  uint32 `mapstructure:"snaplen"`
	LinkType uint32 `mapstructure:"link_type"`
	Thiszone int32  `mapstructure:"thiszone"`
}

// FlagKeys command line flags and the configuration key each one sets.
var FlagKeys = map[string]string{
	"snaplen":  "header.snaplen",
	"linktype": "header.link_type",
	"thiszone": "header.thiszone",
}

// IncludeLinkLayerFlag sets interfaces.exclude_link_layer to its negation.
const IncludeLinkLayerFlag = "include-link-layer"

// Load read the configuration. path may be empty, in which case only
// defaults, environment and flags apply. flags may be nil; flags named in
// FlagKeys, and IncludeLinkLayerFlag, override the file and environment
// when the user set them.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about
	_ = v.BindEnv("interfaces.exclude_link_layer")

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
		if f := flags.Lookup(IncludeLinkLayerFlag); f != nil && f.Changed {
			include, err := flags.GetBool(IncludeLinkLayerFlag)
			if err != nil {
				return nil, fmt.Errorf("failed to read flag %s: %w", f.Name, err)
			}
			v.Set("interfaces.exclude_link_layer", !include)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("header.snaplen", 262144)
	v.SetDefault("header.link_type", 1)
	v.SetDefault("header.thiszone", 0)
}

// Validate check values viper cannot check by type alone
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
