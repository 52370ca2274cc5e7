// Package config holds the runtime configuration of the duplexd binary.
//
// Precedence order (highest wins):
//  1. CLI flags (applied by cmd/duplexd)
//  2. DUPLEX_* environment variables
//  3. TOML config file
//  4. Defaults
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
)

// Default values.
const (
	DefaultListen         = "127.0.0.1:12345"
	DefaultAddr           = "127.0.0.1:12345"
	DefaultMaxMessageSize = 1024 * 1024
	DefaultReadBufferSize = 4096
	DefaultDialTimeout    = 5 * time.Second
	DefaultReplyWait      = 2 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Config is the merged configuration.
type Config struct {
	// Server side.
	Listen    string `env:"DUPLEX_LISTEN"`
	Broadcast bool   `env:"DUPLEX_BROADCAST"`

	// Client side.
	Addr        string        `env:"DUPLEX_ADDR"`
	DialTimeout time.Duration `env:"DUPLEX_DIAL_TIMEOUT"`
	ReplyWait   time.Duration `env:"DUPLEX_REPLY_WAIT"`

	// Both.
	MaxMessageSize int    `env:"DUPLEX_MAX_MESSAGE_SIZE"`
	ReadBufferSize int    `env:"DUPLEX_READ_BUFFER_SIZE"`
	LogLevel       string `env:"DUPLEX_LOG_LEVEL"`
	LogFormat      string `env:"DUPLEX_LOG_FORMAT"`
}

// Default returns a Config filled with defaults.
func Default() Config {
	return Config{
		Listen:         DefaultListen,
		Addr:           DefaultAddr,
		DialTimeout:    DefaultDialTimeout,
		ReplyWait:      DefaultReplyWait,
		MaxMessageSize: DefaultMaxMessageSize,
		ReadBufferSize: DefaultReadBufferSize,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// Load builds a Config from defaults, the optional TOML file at path and the
// environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := LoadEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

type fileConfig struct {
	Listen         string `toml:"listen"`
	Broadcast      bool   `toml:"broadcast"`
	Addr           string `toml:"addr"`
	DialTimeout    string `toml:"dial_timeout"`
	ReplyWait      string `toml:"reply_wait"`
	MaxMessageSize int    `toml:"max_message_size"`
	ReadBufferSize int    `toml:"read_buffer_size"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
}

// LoadFile overlays the keys present in the TOML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("broadcast") {
		cfg.Broadcast = raw.Broadcast
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return errors.Wrap(err, "parse dial_timeout")
		}
		cfg.DialTimeout = d
	}
	if meta.IsDefined("reply_wait") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReplyWait))
		if err != nil {
			return errors.Wrap(err, "parse reply_wait")
		}
		cfg.ReplyWait = d
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	return nil
}

// LoadEnv overlays set DUPLEX_* environment variables onto cfg. Unset
// variables leave the current value alone.
func LoadEnv(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return errors.Wrap(err, "load environment")
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxMessageSize <= 0 {
		return errors.Errorf("max_message_size must be positive, got %d", c.MaxMessageSize)
	}
	if c.ReadBufferSize <= 0 {
		return errors.Errorf("read_buffer_size must be positive, got %d", c.ReadBufferSize)
	}
	if c.DialTimeout < 0 || c.ReplyWait < 0 {
		return errors.New("durations must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
