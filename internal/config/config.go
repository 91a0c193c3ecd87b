package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const appName = "fileman"

type LoggingCfg struct {
	Level        string `yaml:"level" toml:"level" json:"level"`                         // Level of the log file: debug, info, warn, error
	Dir          string `yaml:"dir" toml:"dir" json:"dir"`                               // Directory holding fileman.log; empty disables the file
	RotationDays int    `yaml:"rotation_days" toml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type HistoryCfg struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Path    string `yaml:"path" toml:"path" json:"path"` // SQLite database of executed operations
}

type MetricsCfg struct {
	Textfile string `yaml:"textfile" toml:"textfile" json:"textfile"` // node-exporter textfile target (*.prom); empty disables
}

type TransferCfg struct {
	ChunkSize             int    `yaml:"chunk_size" toml:"chunk_size" json:"chunk_size"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds" json:"connect_timeout_seconds"`
	HeaderTimeoutSeconds  int    `yaml:"header_timeout_seconds" toml:"header_timeout_seconds" json:"header_timeout_seconds"`
	TimeoutSeconds        int    `yaml:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds"` // Whole transfer; 0 = none
	MaxBytesPerSecond     int64  `yaml:"max_bytes_per_second" toml:"max_bytes_per_second" json:"max_bytes_per_second"`
	UserAgent             string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	CreateParents         bool   `yaml:"create_parents" toml:"create_parents" json:"create_parents"`
	CheckFreeSpace        bool   `yaml:"check_free_space" toml:"check_free_space" json:"check_free_space"`
}

type MoveCfg struct {
	CrossDevice   bool `yaml:"cross_device" toml:"cross_device" json:"cross_device"` // Copy then rename when source and destination are on different volumes
	CreateParents bool `yaml:"create_parents" toml:"create_parents" json:"create_parents"`
}

type SafetyCfg struct {
	ProtectedPaths []string `yaml:"protected_paths" toml:"protected_paths" json:"protected_paths"` // Trees that can never be deleted or moved
	AllowedRoots   []string `yaml:"allowed_roots" toml:"allowed_roots" json:"allowed_roots"`       // When set, mutations must stay inside these roots
}

type Config struct {
	Log      LoggingCfg  `yaml:"log" toml:"log" json:"log"`
	History  HistoryCfg  `yaml:"history" toml:"history" json:"history"`
	Metrics  MetricsCfg  `yaml:"metrics" toml:"metrics" json:"metrics"`
	Transfer TransferCfg `yaml:"transfer" toml:"transfer" json:"transfer"`
	Move     MoveCfg     `yaml:"move" toml:"move" json:"move"`
	Safety   SafetyCfg   `yaml:"safety" toml:"safety" json:"safety"`

	// Source is the file the configuration was read from; empty for defaults
	Source string `yaml:"-" toml:"-" json:"-"`
}

var (
	errInvalidPath      = errors.New("path must be absolute")
	errNegativeSize     = errors.New("value cannot be negative")
	errUnknownLevel     = errors.New("unknown log level")
	errUnsupportedType  = errors.New("unsupported config file type")
	errTextfileNotProm  = errors.New("metrics textfile must end in .prom")
	validLevels         = []string{"debug", "info", "warn", "error"}
	supportedExtensions = []string{".yaml", ".yml", ".toml"}
)

// Default returns the configuration used when no file is present
func Default() *Config {
	state := StateDir()
	return &Config{
		Log: LoggingCfg{
			Level:        "info",
			Dir:          state,
			RotationDays: 30,
		},
		History: HistoryCfg{
			Enabled: true,
			Path:    filepath.Join(state, "history.db"),
		},
		Transfer: TransferCfg{
			ChunkSize:             32 * 1024,
			ConnectTimeoutSeconds: 30,
			HeaderTimeoutSeconds:  30,
			UserAgent:             appName,
			CheckFreeSpace:        true,
		},
		Move: MoveCfg{
			CrossDevice: true,
		},
	}
}

// StateDir is where logs and history live by default
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// SearchPaths lists the files LoadOrDefault looks for, in order
func SearchPaths() []string {
	dir := filepath.Join(xdg.ConfigHome, appName)
	paths := make([]string, 0, len(supportedExtensions))
	for _, ext := range supportedExtensions {
		paths = append(paths, filepath.Join(dir, "config"+ext))
	}
	return paths
}

// Load reads a YAML or TOML file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// LoadOrDefault loads path, or the first existing file of SearchPaths when
// path is empty. Without any file the defaults are returned.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	cfg := Default()
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode yaml: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("decode toml: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", errUnsupportedType, path)
	}
	return nil
}

func (c *Config) validateAndDefault() error {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if !contains(validLevels, c.Log.Level) {
		return fmt.Errorf("log.level %q: %w", c.Log.Level, errUnknownLevel)
	}
	if c.Log.RotationDays <= 0 {
		c.Log.RotationDays = 30 // Default: keep logs for 30 days
	}
	if c.Log.Dir != "" {
		dir, err := cleanAbsolute(c.Log.Dir)
		if err != nil {
			return fmt.Errorf("log.dir: %w", err)
		}
		c.Log.Dir = dir
	}

	if c.History.Enabled {
		if c.History.Path == "" {
			c.History.Path = filepath.Join(StateDir(), "history.db")
		}
		p, err := cleanAbsolute(c.History.Path)
		if err != nil {
			return fmt.Errorf("history.path: %w", err)
		}
		c.History.Path = p
	}

	if c.Metrics.Textfile != "" {
		p, err := cleanAbsolute(c.Metrics.Textfile)
		if err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
		if filepath.Ext(p) != ".prom" {
			return errTextfileNotProm
		}
		c.Metrics.Textfile = p
	}

	t := &c.Transfer
	for name, v := range map[string]int64{
		"transfer.chunk_size":              int64(t.ChunkSize),
		"transfer.connect_timeout_seconds": int64(t.ConnectTimeoutSeconds),
		"transfer.header_timeout_seconds":  int64(t.HeaderTimeoutSeconds),
		"transfer.timeout_seconds":         int64(t.TimeoutSeconds),
		"transfer.max_bytes_per_second":    t.MaxBytesPerSecond,
	} {
		if v < 0 {
			return fmt.Errorf("%s: %w", name, errNegativeSize)
		}
	}
	if t.ChunkSize == 0 {
		t.ChunkSize = 32 * 1024
	}
	if t.UserAgent == "" {
		t.UserAgent = appName
	}

	var err error
	if c.Safety.ProtectedPaths, err = cleanAll(c.Safety.ProtectedPaths); err != nil {
		return fmt.Errorf("safety.protected_paths: %w", err)
	}
	if c.Safety.AllowedRoots, err = cleanAll(c.Safety.AllowedRoots); err != nil {
		return fmt.Errorf("safety.allowed_roots: %w", err)
	}
	return nil
}

func cleanAll(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cp)
	}
	return cleaned, nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (t TransferCfg) ConnectTimeout() time.Duration { return seconds(t.ConnectTimeoutSeconds) }
func (t TransferCfg) HeaderTimeout() time.Duration  { return seconds(t.HeaderTimeoutSeconds) }
func (t TransferCfg) Timeout() time.Duration        { return seconds(t.TimeoutSeconds) }
