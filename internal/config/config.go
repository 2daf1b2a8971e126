package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/emvtap/internal/emv"
	"github.com/danmuck/emvtap/internal/logging"
	"github.com/danmuck/emvtap/internal/protocol/tlv"
	"github.com/rs/zerolog"
)

const (
	DriverPCSC   = "pcsc"
	DriverScript = "script"

	TraceNone   = "none"
	TraceStdout = "stdout"
	TraceFile   = "file"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved runtime configuration.
type Config struct {
	Reader   ReaderConfig
	Terminal map[tlv.Tag][]byte
	Log      LogConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
}

type ReaderConfig struct {
	Driver string
	// Name selects a PC/SC reader by case-insensitive substring. Empty
	// selects the first reader.
	Name            string
	Script          string
	PollInterval    time.Duration
	ExchangeTimeout time.Duration
}

type LogConfig struct {
	Level zerolog.Level
	JSON  bool
}

type MetricsConfig struct {
	// Addr is the listen address of the metrics server. Empty disables it.
	Addr        string
	CORSOrigins []string
}

// TracingConfig selects where finished spans are exported.
type TracingConfig struct {
	Exporter string
	// Path is the span file for the file exporter.
	Path   string
	Pretty bool
}

func (t TracingConfig) Enabled() bool {
	return t.Exporter != "" && t.Exporter != TraceNone
}

type fileConfig struct {
	Reader struct {
		Driver          string `toml:"driver"`
		Name            string `toml:"name"`
		Script          string `toml:"script"`
		PollInterval    string `toml:"poll_interval"`
		ExchangeTimeout string `toml:"exchange_timeout"`
	} `toml:"reader"`
	Terminal map[string]string `toml:"terminal"`
	Log      struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
	Metrics struct {
		Addr        string   `toml:"addr"`
		CORSOrigins []string `toml:"cors_origins"`
	} `toml:"metrics"`
	Tracing struct {
		Exporter string `toml:"exporter"`
		Path     string `toml:"path"`
		Pretty   bool   `toml:"pretty"`
	} `toml:"tracing"`
}

func Default() Config {
	return Config{
		Reader: ReaderConfig{
			Driver:          DriverPCSC,
			PollInterval:    emv.DefaultLoopConfig().PollInterval,
			ExchangeTimeout: 2 * time.Second,
		},
		Terminal: map[tlv.Tag][]byte{},
		Log:      LogConfig{Level: zerolog.InfoLevel},
		Metrics:  MetricsConfig{Addr: ":9464"},
		Tracing:  TracingConfig{Exporter: TraceNone},
	}
}

// Load reads path over the defaults. Only keys present in the file change
// the defaults.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return resolve(raw, meta)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("reader", "driver") {
		cfg.Reader.Driver = strings.ToLower(strings.TrimSpace(raw.Reader.Driver))
	}
	if meta.IsDefined("reader", "name") {
		cfg.Reader.Name = strings.TrimSpace(raw.Reader.Name)
	}
	if meta.IsDefined("reader", "script") {
		cfg.Reader.Script = strings.TrimSpace(raw.Reader.Script)
	}
	if meta.IsDefined("reader", "poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Reader.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse reader.poll_interval: %w", err)
		}
		cfg.Reader.PollInterval = d
	}
	if meta.IsDefined("reader", "exchange_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Reader.ExchangeTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse reader.exchange_timeout: %w", err)
		}
		cfg.Reader.ExchangeTimeout = d
	}

	for key, value := range raw.Terminal {
		tag, err := tlv.ParseTagString(key)
		if err != nil {
			return Config{}, fmt.Errorf("parse terminal tag %q: %w", key, err)
		}
		v, err := DecodeHex(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse terminal.%s: %w", key, err)
		}
		cfg.Terminal[tag] = v
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}
	if meta.IsDefined("metrics", "cors_origins") {
		cfg.Metrics.CORSOrigins = raw.Metrics.CORSOrigins
	}

	if meta.IsDefined("tracing", "exporter") {
		cfg.Tracing.Exporter = strings.ToLower(strings.TrimSpace(raw.Tracing.Exporter))
	}
	if meta.IsDefined("tracing", "path") {
		cfg.Tracing.Path = strings.TrimSpace(raw.Tracing.Path)
	}
	if meta.IsDefined("tracing", "pretty") {
		cfg.Tracing.Pretty = raw.Tracing.Pretty
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch cfg.Reader.Driver {
	case DriverPCSC:
	case DriverScript:
		if cfg.Reader.Script == "" {
			return fmt.Errorf("%w: reader.script is required for the script driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: reader.driver %q", ErrInvalidConfig, cfg.Reader.Driver)
	}
	if cfg.Reader.PollInterval <= 0 {
		return fmt.Errorf("%w: reader.poll_interval must be positive", ErrInvalidConfig)
	}
	if cfg.Reader.ExchangeTimeout < 0 {
		return fmt.Errorf("%w: reader.exchange_timeout must not be negative", ErrInvalidConfig)
	}
	switch cfg.Tracing.Exporter {
	case "", TraceNone, TraceStdout:
	case TraceFile:
		if cfg.Tracing.Path == "" {
			return fmt.Errorf("%w: tracing.path is required for the file exporter", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: tracing.exporter %q", ErrInvalidConfig, cfg.Tracing.Exporter)
	}
	for tag, v := range cfg.Terminal {
		if len(v) > 0xFF {
			return fmt.Errorf("%w: terminal.%s longer than 255 bytes", ErrInvalidConfig, tag)
		}
	}
	return nil
}

// TerminalData returns the default terminal dictionary with the configured
// overrides applied.
func (c Config) TerminalData() emv.TerminalData {
	return emv.DefaultTerminalData().With(c.Terminal)
}

// DecodeHex decodes hex with optional whitespace and ':' separators.
func DecodeHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return b, nil
}
