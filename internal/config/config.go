// Package config loads recdb configuration from JSONC files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/recdb/internal/fs"
	"github.com/calvinalkan/recdb/internal/logging"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDBFileEmpty        = errors.New("db_file cannot be empty")
	ErrRateInvalid        = errors.New("rate_limit must be >= 0 and rate_burst >= 1")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DBFile     string  `json:"db_file"`
	Listen     string  `json:"listen"`
	Remote     string  `json:"remote,omitempty"`
	LogLevel   string  `json:"log_level"`
	LogFormat  string  `json:"log_format"`
	Exclusive  bool    `json:"exclusive"`
	SyncWrites bool    `json:"sync_writes"`
	RateLimit  float64 `json:"rate_limit"`
	RateBurst  int     `json:"rate_burst"`
	Editor     string  `json:"editor,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string  `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DBFileAbs    string  `json:"-"` // Absolute path to the data file
	Sources      Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DBFile:    "recdb.db",
		Listen:    "127.0.0.1:8420",
		LogLevel:  "warn",
		LogFormat: logging.FormatText,
		RateBurst: 20,
	}
}

// FileName is the project config file name.
const FileName = ".recdb.json"

// globalPath returns $XDG_CONFIG_HOME/recdb/config.json, falling back to
// ~/.config/recdb/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "recdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "recdb", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load. Empty override strings mean "not set".
type LoadInput struct {
	WorkDirOverride  string // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath       string // -c/--config flag value
	DBFileOverride   string // --db flag value
	RemoteOverride   string // --remote flag value
	LogLevelOverride string // --log-level flag value
	Env              map[string]string
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/recdb/config.json)
// 3. Project config file (.recdb.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		loaded, err := loadFile(&cfg, path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	loaded, err := loadFile(&cfg, projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
	}

	if input.DBFileOverride != "" {
		cfg.DBFile = input.DBFileOverride
	}

	if input.RemoteOverride != "" {
		cfg.Remote = input.RemoteOverride
	}

	if input.LogLevelOverride != "" {
		cfg.LogLevel = input.LogLevelOverride
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DBFile) {
		cfg.DBFileAbs = cfg.DBFile
	} else {
		cfg.DBFileAbs = filepath.Join(workDir, cfg.DBFile)
	}

	return cfg, nil
}

// loadFile merges the keys present in the file at path into cfg. If
// mustExist is false, a missing file is not an error and reports false.
func loadFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if !mustExist {
				return false, nil
			}

			return false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	if err := parseInto(cfg, data); err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return true, nil
}

// parseInto overlays the keys set in data onto cfg. Keys missing from data
// keep their current value, so a file can turn a boolean off.
func parseInto(cfg *Config, data []byte) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	var overlay Config

	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]json.RawMessage

	_ = json.Unmarshal(standardized, &raw)

	if _, ok := raw["db_file"]; ok {
		if overlay.DBFile == "" {
			return ErrDBFileEmpty
		}

		cfg.DBFile = overlay.DBFile
	}

	if _, ok := raw["listen"]; ok {
		cfg.Listen = overlay.Listen
	}

	if _, ok := raw["remote"]; ok {
		cfg.Remote = overlay.Remote
	}

	if _, ok := raw["log_level"]; ok {
		cfg.LogLevel = overlay.LogLevel
	}

	if _, ok := raw["log_format"]; ok {
		cfg.LogFormat = overlay.LogFormat
	}

	if _, ok := raw["exclusive"]; ok {
		cfg.Exclusive = overlay.Exclusive
	}

	if _, ok := raw["sync_writes"]; ok {
		cfg.SyncWrites = overlay.SyncWrites
	}

	if _, ok := raw["rate_limit"]; ok {
		cfg.RateLimit = overlay.RateLimit
	}

	if _, ok := raw["rate_burst"]; ok {
		cfg.RateBurst = overlay.RateBurst
	}

	if _, ok := raw["editor"]; ok {
		cfg.Editor = overlay.Editor
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.DBFile == "" {
		return ErrDBFileEmpty
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if cfg.LogFormat != logging.FormatText && cfg.LogFormat != logging.FormatJSON {
		return fmt.Errorf("%w: log_format must be %q or %q, got %q",
			ErrConfigInvalid, logging.FormatText, logging.FormatJSON, cfg.LogFormat)
	}

	if cfg.RateLimit < 0 || cfg.RateBurst < 1 {
		return ErrRateInvalid
	}

	return nil
}

// Format returns the serialized fields of cfg as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// Save writes cfg to path atomically, replacing any existing file.
func Save(fsys fs.FS, path string, cfg Config) error {
	formatted, err := Format(cfg)
	if err != nil {
		return err
	}

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if err := fsys.WriteFileAtomic(path, []byte(formatted+"\n"), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}

	return nil
}
