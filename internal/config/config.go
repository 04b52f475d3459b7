package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/shellmark/internal/search"
)

// Config represents the shellmark configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Search     SearchConfig     `yaml:"search"`
	Tuning     TuningConfig     `yaml:"tuning"`
	Completion CompletionConfig `yaml:"completion"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath        string `yaml:"db_path"`         // Database file (overrides default)
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"` // SQLite busy timeout
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultMode   string `yaml:"default_mode"`   // auto, exact, relaxed, regex, fuzzy
	WorkspaceFile string `yaml:"workspace_file"` // File name looked up from the working directory
	DebounceMs    int    `yaml:"debounce_ms"`    // Picker keystroke debounce
}

// TuningConfig holds ranking weights.
type TuningConfig struct {
	TextPoints        float64 `yaml:"text_points"`
	CmdWeight         float64 `yaml:"cmd_weight"`         // bm25 weight of the command column
	DescriptionWeight float64 `yaml:"description_weight"` // bm25 weight of the description column
	AutoPrefix        float64 `yaml:"auto_prefix"`
	AutoFuzzy         float64 `yaml:"auto_fuzzy"`
	AutoRelaxed       float64 `yaml:"auto_relaxed"`
	AutoRoot          float64 `yaml:"auto_root"`
	PathPoints        float64 `yaml:"path_points"`
	PathExact         float64 `yaml:"path_exact"`
	PathAncestor      float64 `yaml:"path_ancestor"`
	PathDescendant    float64 `yaml:"path_descendant"`
	PathUnrelated     float64 `yaml:"path_unrelated"`
	UsagePoints       float64 `yaml:"usage_points"`
}

// CompletionConfig holds variable completion settings.
type CompletionConfig struct {
	TimeoutMs      int `yaml:"timeout_ms"`      // Per-provider timeout
	MaxConcurrency int `yaml:"max_concurrency"` // Providers run at once
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // Log file path (empty logs to stderr)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BusyTimeoutMs: 5000,
		},
		Search: SearchConfig{
			DefaultMode:   string(search.ModeAuto),
			WorkspaceFile: ".shellmark.yaml",
			DebounceMs:    150,
		},
		Tuning: TuningFromSearch(search.DefaultTuning()),
		Completion: CompletionConfig{
			TimeoutMs:      2000,
			MaxConcurrency: 4,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// TuningFromSearch converts ranking weights into their config form.
func TuningFromSearch(t search.Tuning) TuningConfig {
	return TuningConfig{
		TextPoints:        t.Text.Points,
		CmdWeight:         t.Text.CmdWeight,
		DescriptionWeight: t.Text.DescriptionWeight,
		AutoPrefix:        t.Text.Auto.Prefix,
		AutoFuzzy:         t.Text.Auto.Fuzzy,
		AutoRelaxed:       t.Text.Auto.Relaxed,
		AutoRoot:          t.Text.Auto.Root,
		PathPoints:        t.Path.Points,
		PathExact:         t.Path.Exact,
		PathAncestor:      t.Path.Ancestor,
		PathDescendant:    t.Path.Descendant,
		PathUnrelated:     t.Path.Unrelated,
		UsagePoints:       t.Usage.Points,
	}
}

// SearchTuning returns the weights in the form the search service takes.
func (t TuningConfig) SearchTuning() search.Tuning {
	return search.Tuning{
		Text: search.TextTuning{
			Points:            t.TextPoints,
			CmdWeight:         t.CmdWeight,
			DescriptionWeight: t.DescriptionWeight,
			Auto: search.AutoTuning{
				Prefix:  t.AutoPrefix,
				Fuzzy:   t.AutoFuzzy,
				Relaxed: t.AutoRelaxed,
				Root:    t.AutoRoot,
			},
		},
		Path: search.PathTuning{
			Points:     t.PathPoints,
			Exact:      t.PathExact,
			Ancestor:   t.PathAncestor,
			Descendant: t.PathDescendant,
			Unrelated:  t.PathUnrelated,
		},
		Usage: search.UsageTuning{
			Points: t.UsagePoints,
		},
	}
}

// DatabaseFile returns the configured database path, or the default one.
func (c *Config) DatabaseFile() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return DefaultPaths().DatabaseFile()
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// CompletionTimeout returns the per-provider completion timeout.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.Completion.TimeoutMs) * time.Millisecond
}

// DefaultMode returns the parsed default search mode.
func (c *Config) DefaultMode() search.Mode {
	m, err := search.ParseMode(c.Search.DefaultMode)
	if err != nil {
		return search.ModeAuto
	}
	return m
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ReadFile reads the file over the defaults without applying environment
// overrides or validating. A missing file yields the defaults.
func ReadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	paths := DefaultPaths()
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key.
// For example: "search.default_mode" or "tuning.text_points"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "storage":
		return c.getStorageField(field)
	case "search":
		return c.getSearchField(field)
	case "tuning":
		p, err := c.tuningField(field)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(*p, 'g', -1, 64), nil
	case "completion":
		return c.getCompletionField(field)
	case "log":
		return c.getLogField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "storage":
		return c.setStorageField(field, value)
	case "search":
		return c.setSearchField(field, value)
	case "tuning":
		p, err := c.tuningField(field)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", field, err)
		}
		*p = v
		return nil
	case "completion":
		return c.setCompletionField(field, value)
	case "log":
		return c.setLogField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getStorageField(field string) (string, error) {
	switch field {
	case "db_path":
		return c.Storage.DBPath, nil
	case "busy_timeout_ms":
		return strconv.Itoa(c.Storage.BusyTimeoutMs), nil
	default:
		return "", fmt.Errorf("unknown field: storage.%s", field)
	}
}

func (c *Config) setStorageField(field, value string) error {
	switch field {
	case "db_path":
		c.Storage.DBPath = value
	case "busy_timeout_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for busy_timeout_ms: %w", err)
		}
		c.Storage.BusyTimeoutMs = v
	default:
		return fmt.Errorf("unknown field: storage.%s", field)
	}
	return nil
}

func (c *Config) getSearchField(field string) (string, error) {
	switch field {
	case "default_mode":
		return c.Search.DefaultMode, nil
	case "workspace_file":
		return c.Search.WorkspaceFile, nil
	case "debounce_ms":
		return strconv.Itoa(c.Search.DebounceMs), nil
	default:
		return "", fmt.Errorf("unknown field: search.%s", field)
	}
}

func (c *Config) setSearchField(field, value string) error {
	switch field {
	case "default_mode":
		m, err := search.ParseMode(value)
		if err != nil {
			return err
		}
		c.Search.DefaultMode = string(m)
	case "workspace_file":
		c.Search.WorkspaceFile = value
	case "debounce_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for debounce_ms: %w", err)
		}
		c.Search.DebounceMs = v
	default:
		return fmt.Errorf("unknown field: search.%s", field)
	}
	return nil
}

func (c *Config) tuningField(field string) (*float64, error) {
	t := &c.Tuning
	switch field {
	case "text_points":
		return &t.TextPoints, nil
	case "cmd_weight":
		return &t.CmdWeight, nil
	case "description_weight":
		return &t.DescriptionWeight, nil
	case "auto_prefix":
		return &t.AutoPrefix, nil
	case "auto_fuzzy":
		return &t.AutoFuzzy, nil
	case "auto_relaxed":
		return &t.AutoRelaxed, nil
	case "auto_root":
		return &t.AutoRoot, nil
	case "path_points":
		return &t.PathPoints, nil
	case "path_exact":
		return &t.PathExact, nil
	case "path_ancestor":
		return &t.PathAncestor, nil
	case "path_descendant":
		return &t.PathDescendant, nil
	case "path_unrelated":
		return &t.PathUnrelated, nil
	case "usage_points":
		return &t.UsagePoints, nil
	default:
		return nil, fmt.Errorf("unknown field: tuning.%s", field)
	}
}

func (c *Config) getCompletionField(field string) (string, error) {
	switch field {
	case "timeout_ms":
		return strconv.Itoa(c.Completion.TimeoutMs), nil
	case "max_concurrency":
		return strconv.Itoa(c.Completion.MaxConcurrency), nil
	default:
		return "", fmt.Errorf("unknown field: completion.%s", field)
	}
}

func (c *Config) setCompletionField(field, value string) error {
	v, err := strconv.Atoi(value)
	switch field {
	case "timeout_ms":
		if err != nil {
			return fmt.Errorf("invalid value for timeout_ms: %w", err)
		}
		c.Completion.TimeoutMs = v
	case "max_concurrency":
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrency: %w", err)
		}
		c.Completion.MaxConcurrency = v
	default:
		return fmt.Errorf("unknown field: completion.%s", field)
	}
	return nil
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "file":
		return c.Log.File, nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", value)
		}
		c.Log.Level = value
	case "file":
		c.Log.File = value
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.BusyTimeoutMs < 0 {
		return errors.New("storage.busy_timeout_ms must be >= 0")
	}

	if _, err := search.ParseMode(c.Search.DefaultMode); err != nil {
		return fmt.Errorf("search.default_mode: %w", err)
	}

	if strings.ContainsRune(c.Search.WorkspaceFile, filepath.Separator) {
		return fmt.Errorf("search.workspace_file must be a file name (got: %s)", c.Search.WorkspaceFile)
	}

	if c.Search.DebounceMs < 0 {
		return errors.New("search.debounce_ms must be >= 0")
	}

	for _, key := range tuningKeys {
		p, _ := c.tuningField(strings.TrimPrefix(key, "tuning."))
		if *p < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}

	if c.Completion.TimeoutMs <= 0 {
		return errors.New("completion.timeout_ms must be > 0")
	}

	if c.Completion.MaxConcurrency <= 0 {
		return errors.New("completion.max_concurrency must be > 0")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SHELLMARK_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("SHELLMARK_SEARCH_MODE"); v != "" {
		if m, err := search.ParseMode(v); err == nil {
			c.Search.DefaultMode = string(m)
		}
	}
	if v := os.Getenv("SHELLMARK_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("SHELLMARK_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
}

var tuningKeys = []string{
	"tuning.text_points",
	"tuning.cmd_weight",
	"tuning.description_weight",
	"tuning.auto_prefix",
	"tuning.auto_fuzzy",
	"tuning.auto_relaxed",
	"tuning.auto_root",
	"tuning.path_points",
	"tuning.path_exact",
	"tuning.path_ancestor",
	"tuning.path_descendant",
	"tuning.path_unrelated",
	"tuning.usage_points",
}

// ListKeys returns every configuration key accepted by Get and Set.
func ListKeys() []string {
	keys := []string{
		"storage.db_path",
		"storage.busy_timeout_ms",
		"search.default_mode",
		"search.workspace_file",
		"search.debounce_ms",
	}
	keys = append(keys, tuningKeys...)
	return append(keys,
		"completion.timeout_ms",
		"completion.max_concurrency",
		"log.level",
		"log.file",
	)
}
