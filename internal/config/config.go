// Package config resolves objectd settings from defaults, a TOML file and
// DURABLE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/object"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	HostID  string
	Addr    string
	Token   string
	TLSCert string
	TLSKey  string
	Storage StorageConfig
	Codec   string
	Persist PersistConfig
}

type StorageConfig struct {
	Driver string
	Path   string
}

// PersistConfig maps onto object.RetryPolicy. Retries of 0 disables retry.
type PersistConfig struct {
	Retries      int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultConfig() Config {
	backoff := object.DefaultBackoff()
	return Config{
		HostID: "objectd",
		Addr:   ":8080",
		Storage: StorageConfig{
			Driver: DriverMemory,
			Path:   "objects.db",
		},
		Codec: codec.NameJSON,
		Persist: PersistConfig{
			Retries:      0,
			InitialDelay: backoff.InitialDelay,
			MaxDelay:     backoff.MaxDelay,
			Jitter:       backoff.Jitter,
		},
	}
}

// RetryPolicy converts the persist section for object.WithPersistRetry.
func (c Config) RetryPolicy() object.RetryPolicy {
	return object.RetryPolicy{
		Attempts: c.Persist.Retries,
		Backoff: object.BackoffConfig{
			InitialDelay: c.Persist.InitialDelay,
			Multiplier:   2.0,
			MaxDelay:     c.Persist.MaxDelay,
			Jitter:       c.Persist.Jitter,
		},
	}
}

type fileConfig struct {
	Host struct {
		ID      string `toml:"id"`
		Addr    string `toml:"addr"`
		Token   string `toml:"token"`
		TLSCert string `toml:"tls_cert"`
		TLSKey  string `toml:"tls_key"`
	} `toml:"host"`
	Storage struct {
		Driver string `toml:"driver"`
		Path   string `toml:"path"`
	} `toml:"storage"`
	Codec   string `toml:"codec"`
	Persist struct {
		Retries      int    `toml:"retries"`
		InitialDelay string `toml:"initial_delay"`
		MaxDelay     string `toml:"max_delay"`
		Jitter       bool   `toml:"jitter"`
	} `toml:"persist"`
}

// Load reads path over DefaultConfig, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	if meta.IsDefined("host", "id") {
		cfg.HostID = strings.TrimSpace(raw.Host.ID)
	}
	if meta.IsDefined("host", "addr") {
		cfg.Addr = strings.TrimSpace(raw.Host.Addr)
	}
	if meta.IsDefined("host", "token") {
		cfg.Token = strings.TrimSpace(raw.Host.Token)
	}
	if meta.IsDefined("host", "tls_cert") {
		cfg.TLSCert = strings.TrimSpace(raw.Host.TLSCert)
	}
	if meta.IsDefined("host", "tls_key") {
		cfg.TLSKey = strings.TrimSpace(raw.Host.TLSKey)
	}
	if meta.IsDefined("storage", "driver") {
		cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(raw.Storage.Driver))
	}
	if meta.IsDefined("storage", "path") {
		cfg.Storage.Path = strings.TrimSpace(raw.Storage.Path)
	}
	if meta.IsDefined("codec") {
		cfg.Codec = strings.ToLower(strings.TrimSpace(raw.Codec))
	}
	if meta.IsDefined("persist", "retries") {
		cfg.Persist.Retries = raw.Persist.Retries
	}
	if meta.IsDefined("persist", "initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Persist.InitialDelay))
		if err != nil {
			return fmt.Errorf("config: parse persist.initial_delay: %w", err)
		}
		cfg.Persist.InitialDelay = d
	}
	if meta.IsDefined("persist", "max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Persist.MaxDelay))
		if err != nil {
			return fmt.Errorf("config: parse persist.max_delay: %w", err)
		}
		cfg.Persist.MaxDelay = d
	}
	if meta.IsDefined("persist", "jitter") {
		cfg.Persist.Jitter = raw.Persist.Jitter
	}
	return nil
}

// envOverrides keeps raw strings so an unset variable never clobbers a
// value from the file.
type envOverrides struct {
	HostID         string `env:"DURABLE_HOST_ID"`
	Addr           string `env:"DURABLE_ADDR"`
	Token          string `env:"DURABLE_TOKEN"`
	TLSCert        string `env:"DURABLE_TLS_CERT"`
	TLSKey         string `env:"DURABLE_TLS_KEY"`
	StorageDriver  string `env:"DURABLE_STORAGE_DRIVER"`
	StoragePath    string `env:"DURABLE_STORAGE_PATH"`
	Codec          string `env:"DURABLE_CODEC"`
	PersistRetries string `env:"DURABLE_PERSIST_RETRIES"`
}

// ApplyEnv overlays DURABLE_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	if v := strings.TrimSpace(raw.HostID); v != "" {
		cfg.HostID = v
	}
	if v := strings.TrimSpace(raw.Addr); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(raw.Token); v != "" {
		cfg.Token = v
	}
	if v := strings.TrimSpace(raw.TLSCert); v != "" {
		cfg.TLSCert = v
	}
	if v := strings.TrimSpace(raw.TLSKey); v != "" {
		cfg.TLSKey = v
	}
	if v := strings.TrimSpace(raw.StorageDriver); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(raw.Codec); v != "" {
		cfg.Codec = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.PersistRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse DURABLE_PERSIST_RETRIES: %w", err)
		}
		cfg.Persist.Retries = n
	}
	return nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.HostID) == "" {
		return fmt.Errorf("%w: host id is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidConfig)
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return fmt.Errorf("%w: tls_cert and tls_key must be set together", ErrInvalidConfig)
	}
	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, cfg.Storage.Driver)
	}
	if _, err := codec.ByName(cfg.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Persist.Retries < 0 {
		return fmt.Errorf("%w: persist.retries must be >= 0", ErrInvalidConfig)
	}
	if cfg.Persist.InitialDelay < 0 || cfg.Persist.MaxDelay < 0 {
		return fmt.Errorf("%w: persist delays must be >= 0", ErrInvalidConfig)
	}
	return nil
}
