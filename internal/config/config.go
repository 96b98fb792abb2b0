// Package config loads transfer job manifests.
//
// A manifest is TOML (.toml) or YAML (.yaml, .yml). A .env file next to the
// manifest is loaded first without overriding the process environment, then
// ANNOTRANSFER_* variables override manifest settings. Relative layer paths
// are resolved against the manifest's directory.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/migrate"
	"github.com/FocuswithJustin/annotransfer/core/transfer"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
)

// Environment variables that override manifest settings.
const (
	EnvLogLevel       = "ANNOTRANSFER_LOG_LEVEL"
	EnvLogFormat      = "ANNOTRANSFER_LOG_FORMAT"
	EnvCacheDir       = "ANNOTRANSFER_CACHE_DIR"
	EnvWorkers        = "ANNOTRANSFER_WORKERS"
	EnvMigrateDir     = "ANNOTRANSFER_MIGRATE_DIR"
	EnvMigrateCommand = "ANNOTRANSFER_MIGRATE_COMMAND"
)

// DefaultWorkers is the batch concurrency when none is configured.
const DefaultWorkers = 4

// Config is a job manifest.
type Config struct {
	LogLevel  string         `toml:"log_level" yaml:"log_level"`
	LogFormat string         `toml:"log_format" yaml:"log_format"`
	CacheDir  string         `toml:"cache_dir" yaml:"cache_dir"`
	Workers   int            `toml:"workers" yaml:"workers"`
	Chapter   int            `toml:"chapter" yaml:"chapter"`
	Migrate   Migrate        `toml:"migrate" yaml:"migrate"`
	Jobs      []transfer.Job `toml:"jobs" yaml:"jobs"`
}

// Migrate selects the base-migration backend. With Command set, an Exec
// migrator runs it; otherwise a Static migrator serves files under Dir.
type Migrate struct {
	Dir     string `toml:"dir" yaml:"dir"`
	Command string `toml:"command" yaml:"command"`
	TempDir string `toml:"temp_dir" yaml:"temp_dir"`
	Ext     string `toml:"ext" yaml:"ext"`
}

// Load reads and validates a manifest.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "manifest", ID: path, Err: err}
		}
		return nil, errors.NewIO("read", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		var perr *errors.ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	cfg.applyEnv()
	cfg.resolvePaths(dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a manifest; ext picks the format (".toml", ".yaml", ".yml").
// Defaults are applied but paths are left as written.
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			perr := errors.NewParse("TOML", "", err.Error())
			perr.Err = err
			return nil, perr
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			perr := errors.NewParse("YAML", "", err.Error())
			perr.Err = err
			return nil, perr
		}
	default:
		v := errors.NewValidation("manifest", "manifest must be .toml, .yaml or .yml")
		v.Value = ext
		return nil, v
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Chapter == 0 {
		c.Chapter = 1
	}
	for i := range c.Jobs {
		if len(c.Jobs[i].Operations) == 0 {
			c.Jobs[i].Operations = append([]transfer.Operation(nil), transfer.Operations...)
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvMigrateDir); v != "" {
		c.Migrate.Dir = v
	}
	if v := os.Getenv(EnvMigrateCommand); v != "" {
		c.Migrate.Command = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		} else {
			c.Workers = -1
		}
	}
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.CacheDir = resolve(c.CacheDir)
	c.Migrate.Dir = resolve(c.Migrate.Dir)
	for i := range c.Jobs {
		j := &c.Jobs[i]
		for _, r := range []*migrate.Rendering{&j.Root, &j.RootDisplay, &j.Commentary, &j.Translation, &j.TranslationDisplay} {
			r.LayerPath = resolve(r.LayerPath)
			r.BasePath = resolve(r.BasePath)
		}
		j.Output = resolve(j.Output)
	}
}

// Validate checks settings and every job.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	if c.Workers < 1 {
		v := errors.NewValidation("workers", "must be at least 1")
		v.Value = strconv.Itoa(c.Workers)
		return v
	}
	if c.Migrate.Command == "" && c.Migrate.Dir == "" {
		return errors.NewValidation("migrate", "either migrate.dir or migrate.command is required")
	}
	if len(c.Jobs) == 0 {
		return errors.NewValidation("jobs", "manifest has no jobs")
	}
	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return err
		}
		if seen[j.Name] {
			v := errors.NewValidation("jobs", "duplicate job name")
			v.Value = j.Name
			return v
		}
		seen[j.Name] = true
	}
	return nil
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (transfer.Job, error) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return transfer.Job{}, errors.NewNotFound("job", name)
}

// Migrator builds the configured migration backend.
func (c *Config) Migrator() migrate.Migrator {
	if c.Migrate.Command != "" {
		return migrate.Exec{
			Command: migrate.ParseCommand(c.Migrate.Command),
			TempDir: c.Migrate.TempDir,
			Ext:     c.Migrate.Ext,
		}
	}
	return migrate.Static{Dir: c.Migrate.Dir, Ext: c.Migrate.Ext}
}

// InitLogging configures the global logger from the manifest.
func (c *Config) InitLogging() {
	level, _ := logging.ParseLevel(c.LogLevel)
	format, _ := logging.ParseFormat(c.LogFormat)
	logging.InitLogger(level, format)
}
