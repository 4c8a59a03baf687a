package config

import "time"

type LogConfig struct {
	Dir    string `mapstructure:"dir"`
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

type TrackerConfig struct {
	// Local address of the UDP socket shared by all tracker sessions
	BindAddr   string        `mapstructure:"bind_addr" validate:"required"`
	DNSTimeout time.Duration `mapstructure:"dns_timeout" validate:"required,min=1ms"`
	// Timeout of the first attempt, doubled on every retransmission (BEP 15)
	BaseTimeout time.Duration `mapstructure:"base_timeout" validate:"required,min=1ms"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=1,max=8"`
	// Lifetime of a connection id issued by a tracker
	ConnectionIDTTL time.Duration `mapstructure:"connection_id_ttl" validate:"required,min=1s"`
	// Lower bound for the re-announce interval when watching
	MinInterval time.Duration `mapstructure:"min_interval" validate:"required,min=1s"`
	// Trackers announced to at the same time
	MaxParallel   int    `mapstructure:"max_parallel" validate:"required,min=1,max=64"`
	BlocklistFile string `mapstructure:"blocklist_file" validate:"omitempty,file"`
}

type Config struct {
	// Port reported to trackers for incoming peer connections
	ListenPort   int    `mapstructure:"listen_port" validate:"required,min=1,max=65535"`
	PeerIDPrefix string `mapstructure:"peer_id_prefix" validate:"max=20"`

	Log     LogConfig     `mapstructure:"log"`
	Tracker TrackerConfig `mapstructure:"tracker"`
}

var Default = Config{
	ListenPort:   6881,
	PeerIDPrefix: "-ZT0100-",
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
	Tracker: TrackerConfig{
		BindAddr:        "0.0.0.0:0",
		DNSTimeout:      5 * time.Second,
		BaseTimeout:     15 * time.Second,
		MaxRetries:      8,
		ConnectionIDTTL: time.Minute,
		MinInterval:     time.Minute,
		MaxParallel:     4,
	},
}
