package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "ZTRACKER"

type Registry struct {
	v        *viper.Viper
	onChange func(name string)
}

func NewRegistry() *Registry {
	r := &Registry{
		v: viper.New(),
	}
	setDefaults(r.v)
	return r
}

// OnChange registers f to be called when the loaded config file is written.
func (r *Registry) OnChange(f func(name string)) {
	r.onChange = f
}

// LoadConfig reads cfgFile, or $HOME/.ztracker/config.yaml when empty.
// A missing default file is not an error, built in defaults are used instead.
func (r *Registry) LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		r.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("Failed to get user home directory: %v", err)
		}

		r.v.AddConfigPath(filepath.Join(home, ".ztracker"))
		r.v.SetConfigName("config")
		r.v.SetConfigType("yaml")
	}

	r.v.SetEnvPrefix(envPrefix)
	r.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	r.v.AutomaticEnv()

	if err := r.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Failed to read config: %w", err)
		}
	} else {
		r.v.OnConfigChange(func(e fsnotify.Event) {
			if r.onChange != nil {
				r.onChange(e.Name)
			}
		})
		r.v.WatchConfig()
	}

	var cfg Config

	if err := r.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (r *Registry) ConfigFile() string {
	return r.v.ConfigFileUsed()
}

func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("Error on validating config: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default
	v.SetDefault("listen_port", d.ListenPort)
	v.SetDefault("peer_id_prefix", d.PeerIDPrefix)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracker.bind_addr", d.Tracker.BindAddr)
	v.SetDefault("tracker.dns_timeout", d.Tracker.DNSTimeout)
	v.SetDefault("tracker.base_timeout", d.Tracker.BaseTimeout)
	v.SetDefault("tracker.max_retries", d.Tracker.MaxRetries)
	v.SetDefault("tracker.connection_id_ttl", d.Tracker.ConnectionIDTTL)
	v.SetDefault("tracker.min_interval", d.Tracker.MinInterval)
	v.SetDefault("tracker.max_parallel", d.Tracker.MaxParallel)
	v.SetDefault("tracker.blocklist_file", d.Tracker.BlocklistFile)
}
