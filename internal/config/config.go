package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/loykin/helpr/internal/env"
	"github.com/loykin/helpr/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. HELPR_SERVER_LISTEN.
const EnvPrefix = "HELPR"

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // empty serves /metrics on the API listener
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type TrayConfig struct {
	IconDir string `mapstructure:"icon_dir"`
	Active  string `mapstructure:"active"`
	Idle    string `mapstructure:"idle"`
}

// Config represents the TOML file.
type Config struct {
	InstallRoot    string        `mapstructure:"install_root"`
	TemplatesDir   string        `mapstructure:"templates_dir"`
	TemplateExt    string        `mapstructure:"template_ext"`
	Binary         string        `mapstructure:"binary"`
	ActiveTemplate string        `mapstructure:"active_template"`
	Autostart      bool          `mapstructure:"autostart"`
	StartCheck     time.Duration `mapstructure:"start_check"`
	KillTimeout    time.Duration `mapstructure:"kill_timeout"`
	ForceStopGrace time.Duration `mapstructure:"force_stop_grace"`
	Env            []string      `mapstructure:"env"`
	EnvFiles       []string      `mapstructure:"env_files"`

	Log     logger.Config `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	History HistoryConfig `mapstructure:"history"`
	Tray    TrayConfig    `mapstructure:"tray"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("install_root", ".")
	v.SetDefault("templates_dir", "pre-configs")
	v.SetDefault("template_ext", ".bat")
	v.SetDefault("binary", filepath.Join("bin", "winws.exe"))
	v.SetDefault("active_template", "general")
	v.SetDefault("autostart", false)
	v.SetDefault("start_check", "100ms")
	v.SetDefault("kill_timeout", "5s")
	v.SetDefault("force_stop_grace", "1s")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logger.FormatText))
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8585")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")

	v.SetDefault("tray.icon_dir", "")
	v.SetDefault("tray.active", "")
	v.SetDefault("tray.idle", "")
}

// normalize anchors relative paths at the install root.
func (c *Config) normalize() {
	if c.InstallRoot == "" {
		c.InstallRoot = "."
	}
	if abs, err := filepath.Abs(c.InstallRoot); err == nil {
		c.InstallRoot = abs
	}
	c.TemplatesDir = c.anchor(c.TemplatesDir)
	c.Binary = c.anchor(c.Binary)
	if c.Tray.IconDir != "" {
		c.Tray.IconDir = c.anchor(c.Tray.IconDir)
	}
	if c.Log.File.Dir != "" {
		c.Log.File.Dir = c.anchor(c.Log.File.Dir)
	}
	if c.Log.File.Path != "" {
		c.Log.File.Path = c.anchor(c.Log.File.Path)
	}
	c.Server.BasePath = "/" + strings.Trim(c.Server.BasePath, "/")
	if c.Server.BasePath == "/" {
		c.Server.BasePath = ""
	}
}

func (c *Config) anchor(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.InstallRoot, p)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return errors.New("binary is required")
	}
	if strings.TrimSpace(c.TemplatesDir) == "" {
		return errors.New("templates_dir is required")
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		return errors.New("history.enabled requires history.dsn")
	}
	if c.StartCheck < 0 || c.KillTimeout < 0 || c.ForceStopGrace < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// HelperEnv composes env_files then env into "K=V" overrides for the helper.
func (c Config) HelperEnv() ([]string, error) {
	e := env.New()
	for _, f := range c.EnvFiles {
		if err := e.LoadFile(c.anchor(f)); err != nil {
			return nil, fmt.Errorf("env file %s: %w", f, err)
		}
	}
	e.SetPairs(c.Env)
	return e.Overrides(), nil
}

// Store owns the loaded configuration and persists the active template.
type Store struct {
	v    *viper.Viper
	path string

	mu       sync.RWMutex
	cfg      Config
	handlers []func(Config)
}

// Load reads path (TOML) when it is set and exists; a missing file yields
// the defaults and is created on the first Save.
func Load(path string) (*Store, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var nf viper.ConfigFileNotFoundError
				if !errors.As(err, &nf) {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
		}
	}
	s := &Store{v: v, path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload decodes viper's view; mu also serializes viper access.
func (s *Store) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Config
	if err := s.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s.cfg = c
	return nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ActiveTemplate is read on every helper start.
func (s *Store) ActiveTemplate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActiveTemplate
}

// SetActiveTemplate updates and persists the selection. Without a config
// path the change lives in memory only.
func (s *Store) SetActiveTemplate(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("template name is required")
	}
	s.mu.Lock()
	s.v.Set("active_template", name)
	s.cfg.ActiveTemplate = name
	s.mu.Unlock()
	return s.Save()
}

// Save writes the current settings to the config path.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// OnChange registers a handler for external edits picked up by Watch.
func (s *Store) OnChange(fn func(Config)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Watch starts viper's fsnotify watch of the config file. Invalid edits are
// reported through onErr and the previous config stays in effect.
func (s *Store) Watch(onErr func(error)) {
	if s.path == "" {
		return
	}
	s.v.OnConfigChange(func(fsnotify.Event) {
		if err := s.reload(); err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		s.mu.RLock()
		c := s.cfg
		hs := append([]func(Config){}, s.handlers...)
		s.mu.RUnlock()
		for _, h := range hs {
			h(c)
		}
	})
	s.v.WatchConfig()
}
