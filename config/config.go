// Package config loads relay settings from the environment, optionally
// primed from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	TransportHTTP     = "http"
	TransportFastHTTP = "fasthttp"

	ResponseEnvelope = "envelope"
	ResponseRaw      = "raw"
)

// Config is the full process configuration.
type Config struct {
	BindAddress      string
	PresetFile       string
	MaxPresets       int
	HistorySize      int
	Transport        string
	TransportTimeout time.Duration
	MirrorStatus     bool
	UsePresetMethod  bool
	UsePresetBody    bool
	ResponseMode     string
	LogLevel         string
	LogFormat        string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BindAddress:      "127.0.0.1:8080",
		HistorySize:      100,
		Transport:        TransportHTTP,
		TransportTimeout: 30 * time.Second,
		ResponseMode:     ResponseEnvelope,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load reads envFile (ignored if missing) into the process environment
// without overriding variables that are already set, then builds a Config
// from the environment.
func Load(envFile string) (Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from lookup, starting from Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := envParser{lookup: lookup}

	p.str("BIND_ADDRESS", &cfg.BindAddress)
	p.str("PRESET_FILE", &cfg.PresetFile)
	p.int("MAX_PRESETS", &cfg.MaxPresets)
	p.int("HISTORY_SIZE", &cfg.HistorySize)
	p.str("TRANSPORT", &cfg.Transport)
	p.duration("TRANSPORT_TIMEOUT", &cfg.TransportTimeout)
	p.bool("MIRROR_STATUS", &cfg.MirrorStatus)
	p.bool("USE_PRESET_METHOD", &cfg.UsePresetMethod)
	p.bool("USE_PRESET_BODY", &cfg.UsePresetBody)
	p.str("RESPONSE_MODE", &cfg.ResponseMode)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.BindAddress == "" {
		errs = append(errs, errors.New("config: BIND_ADDRESS must not be empty"))
	}
	if c.MaxPresets < 0 {
		errs = append(errs, fmt.Errorf("config: MAX_PRESETS must be >= 0, got %d", c.MaxPresets))
	}
	if c.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("config: HISTORY_SIZE must be >= 0, got %d", c.HistorySize))
	}
	if c.TransportTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: TRANSPORT_TIMEOUT must be >= 0, got %s", c.TransportTimeout))
	}
	switch c.Transport {
	case TransportHTTP, TransportFastHTTP:
	default:
		errs = append(errs, fmt.Errorf("config: unknown TRANSPORT %q (want %s or %s)", c.Transport, TransportHTTP, TransportFastHTTP))
	}
	switch c.ResponseMode {
	case ResponseEnvelope, ResponseRaw:
	default:
		errs = append(errs, fmt.Errorf("config: unknown RESPONSE_MODE %q (want %s or %s)", c.ResponseMode, ResponseEnvelope, ResponseRaw))
	}
	return errors.Join(errs...)
}

type envParser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *envParser) get(name string) (string, bool) {
	v, ok := p.lookup(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *envParser) str(name string, dst *string) {
	if v, ok := p.get(name); ok {
		*dst = v
	}
}

func (p *envParser) int(name string, dst *int) {
	v, ok := p.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", name, err))
		return
	}
	*dst = n
}

func (p *envParser) bool(name string, dst *bool) {
	v, ok := p.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", name, err))
		return
	}
	*dst = b
}

func (p *envParser) duration(name string, dst *time.Duration) {
	v, ok := p.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("config: %s: %w", name, err))
		return
	}
	*dst = d
}
