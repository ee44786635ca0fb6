package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// API contains the control API bind address and the shared observer secret.
type API struct {
	Bind   string `toml:"bind"`
	Secret string `toml:"secret"`
}

// Collection describes the asset collection being uploaded.
type Collection struct {
	Name             string `toml:"name"`
	Dir              string `toml:"dir"`
	ManifestFile     string `toml:"manifest_file"`
	SingleAssetName  string `toml:"single_asset_name"`
	Description      string `toml:"description"`
	ExternalLinkBase string `toml:"external_link_base"`
	Chain            string `toml:"chain"`
	UseAbsolutePath  bool   `toml:"use_absolute_path"`
	MaxUploadTime    int    `toml:"max_upload_time"`
}

// Uploader configures the upload transport.
type Uploader struct {
	Endpoint       string `toml:"endpoint"`
	RequestTimeout int    `toml:"request_timeout"`
	Emulate        bool   `toml:"emulate"`
	EmulateDelayMS int    `toml:"emulate_delay_ms"`
}

// Workers configures the worker pool.
type Workers struct {
	Max           int `toml:"max"`
	Initial       int `toml:"initial"`
	SetupAttempts int `toml:"setup_attempts"`
	PollTimeoutMS int `toml:"poll_timeout_ms"`
}

// Distributor configures job distribution pacing.
type Distributor struct {
	QueueSoftCap int `toml:"queue_soft_cap"`
	CadenceMS    int `toml:"cadence_ms"`
	IdleWaitMS   int `toml:"idle_wait_ms"`
}

// Token configures authorization token expiry policy.
type Token struct {
	TTLSeconds int  `toml:"ttl_seconds"`
	CanExpire  bool `toml:"can_expire"`
}

// Broadcast configures observer snapshot delivery.
type Broadcast struct {
	IntervalMS  int `toml:"interval_ms"`
	MaxInflight int `toml:"max_inflight"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shuttle.
type Config struct {
	Paths       Paths       `toml:"paths"`
	API         API         `toml:"api"`
	Collection  Collection  `toml:"collection"`
	Uploader    Uploader    `toml:"uploader"`
	Workers     Workers     `toml:"workers"`
	Distributor Distributor `toml:"distributor"`
	Token       Token       `toml:"token"`
	Broadcast   Broadcast   `toml:"broadcast"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shuttle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err = os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("shuttle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RecordDBPath returns the SQLite file holding upload records.
func (c *Config) RecordDBPath() string {
	return filepath.Join(c.Paths.StateDir, "records.db")
}

// LockFilePath returns the daemon single-instance lock file.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "shuttled.lock")
}

// ManifestPath returns the collection manifest location.
func (c *Config) ManifestPath() string {
	if filepath.IsAbs(c.Collection.ManifestFile) {
		return c.Collection.ManifestFile
	}
	return filepath.Join(c.Collection.Dir, c.Collection.ManifestFile)
}

// LegacyRecordPath returns the pre-SQLite YAML record file location, if any.
func (c *Config) LegacyRecordPath() string {
	return filepath.Join(c.Collection.Dir, "0data_keeper.yaml")
}

func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Workers.PollTimeoutMS) * time.Millisecond
}

func (c *Config) DistributorCadence() time.Duration {
	return time.Duration(c.Distributor.CadenceMS) * time.Millisecond
}

func (c *Config) DistributorIdleWait() time.Duration {
	return time.Duration(c.Distributor.IdleWaitMS) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Token.TTLSeconds) * time.Second
}

func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.Broadcast.IntervalMS) * time.Millisecond
}

func (c *Config) MaxUploadTime() time.Duration {
	return time.Duration(c.Collection.MaxUploadTime) * time.Second
}

func (c *Config) UploadRequestTimeout() time.Duration {
	return time.Duration(c.Uploader.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
