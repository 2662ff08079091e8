// Package config loads offload-demo settings from TOML files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/Swind/go-offload/core"
)

// EnvLogLevel overrides log.level when set.
const EnvLogLevel = "OFFLOAD_LOG_LEVEL"

// Config is the resolved runtime configuration.
type Config struct {
	Dispatcher DispatcherSection
	Loop       LoopSection
	LogLevel   logrus.Level
	Metrics    MetricsSection
}

type DispatcherSection struct {
	Name            string
	QueueCapacity   int
	LockOSThread    bool
	HistoryCapacity int
}

type LoopSection struct {
	Name string
}

type MetricsSection struct {
	Namespace string
	// ListenAddr serves /metrics when non-empty.
	ListenAddr string
}

// config.toml key mapping.
type fileConfig struct {
	Dispatcher struct {
		Name            string `toml:"name"`
		QueueCapacity   int    `toml:"queue_capacity"`
		LockOSThread    bool   `toml:"lock_os_thread"`
		HistoryCapacity int    `toml:"history_capacity"`
	} `toml:"dispatcher"`
	Loop struct {
		Name string `toml:"name"`
	} `toml:"loop"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Metrics struct {
		Namespace  string `toml:"namespace"`
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Dispatcher: DispatcherSection{
			Name:            "native",
			LockOSThread:    true,
			HistoryCapacity: 100,
		},
		Loop:     LoopSection{Name: "main"},
		LogLevel: logrus.InfoLevel,
		Metrics:  MetricsSection{Namespace: "offload"},
	}
}

// Load reads path and overlays the keys it defines on Default.
// An empty path returns the defaults with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load offload config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load offload config: unknown key %q", undecoded[0].String())
		}
		if err := overlay(&cfg, raw, meta); err != nil {
			return Config{}, err
		}
	}

	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		level, err := logrus.ParseLevel(lvl)
		if err != nil {
			return Config{}, fmt.Errorf("load offload config: %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("dispatcher", "name") {
		cfg.Dispatcher.Name = strings.TrimSpace(raw.Dispatcher.Name)
	}
	if meta.IsDefined("dispatcher", "queue_capacity") {
		cfg.Dispatcher.QueueCapacity = raw.Dispatcher.QueueCapacity
	}
	if meta.IsDefined("dispatcher", "lock_os_thread") {
		cfg.Dispatcher.LockOSThread = raw.Dispatcher.LockOSThread
	}
	if meta.IsDefined("dispatcher", "history_capacity") {
		cfg.Dispatcher.HistoryCapacity = raw.Dispatcher.HistoryCapacity
	}
	if meta.IsDefined("loop", "name") {
		cfg.Loop.Name = strings.TrimSpace(raw.Loop.Name)
	}
	if meta.IsDefined("log", "level") {
		level, err := logrus.ParseLevel(strings.TrimSpace(raw.Log.Level))
		if err != nil {
			return fmt.Errorf("load offload config: log.level: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("metrics", "namespace") {
		cfg.Metrics.Namespace = strings.TrimSpace(raw.Metrics.Namespace)
	}
	if meta.IsDefined("metrics", "listen_addr") {
		cfg.Metrics.ListenAddr = strings.TrimSpace(raw.Metrics.ListenAddr)
	}
	return nil
}

// Validate rejects settings the runtime can't honor.
func (c Config) Validate() error {
	if c.Dispatcher.QueueCapacity < 0 {
		return fmt.Errorf("load offload config: dispatcher.queue_capacity must be >= 0, got %d", c.Dispatcher.QueueCapacity)
	}
	if c.Dispatcher.HistoryCapacity < 0 {
		return fmt.Errorf("load offload config: dispatcher.history_capacity must be >= 0, got %d", c.Dispatcher.HistoryCapacity)
	}
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("load offload config: metrics.namespace is required")
	}
	return nil
}

// NewLogger builds the logrus-backed core.Logger at the configured level.
func (c Config) NewLogger() *core.LogrusLogger {
	l := logrus.New()
	l.SetLevel(c.LogLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return core.NewLogrusLogger(l)
}

// DispatcherConfig maps the dispatcher section onto core.DispatcherConfig.
// metrics may be nil.
func (c Config) DispatcherConfig(logger core.Logger, metrics core.Metrics) *core.DispatcherConfig {
	cfg := core.DefaultDispatcherConfig()
	cfg.Name = c.Dispatcher.Name
	cfg.QueueCapacity = c.Dispatcher.QueueCapacity
	cfg.LockOSThread = c.Dispatcher.LockOSThread
	if c.Dispatcher.HistoryCapacity > 0 {
		cfg.HistoryCapacity = c.Dispatcher.HistoryCapacity
	}
	if logger != nil {
		cfg.Logger = logger
		cfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
	}
	if metrics != nil {
		cfg.Metrics = metrics
	}
	return cfg
}

// EventLoopConfig maps the loop section onto core.EventLoopConfig.
func (c Config) EventLoopConfig(logger core.Logger) *core.EventLoopConfig {
	cfg := core.DefaultEventLoopConfig()
	cfg.Name = c.Loop.Name
	if logger != nil {
		cfg.Logger = logger
		cfg.PanicHandler = &core.DefaultPanicHandler{Logger: logger}
		cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: logger}
	}
	return cfg
}
