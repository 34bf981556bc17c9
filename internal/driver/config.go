package driver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"vais/internal/trace"
)

// Config file names, in lookup order.
var configNames = []string{"vais.toml", "vais.yaml", "vais.yml"}

// Config is the checker configuration. Zero values mean "default".
type Config struct {
	Check CheckConfig `toml:"check" yaml:"check"`
	Cache CacheConfig `toml:"cache" yaml:"cache"`
	Trace TraceConfig `toml:"trace" yaml:"trace"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

type CheckConfig struct {
	Jobs             int  `toml:"jobs" yaml:"jobs"`
	ModuleJobs       int  `toml:"module_jobs" yaml:"module_jobs"`
	MaxDiagnostics   int  `toml:"max_diagnostics" yaml:"max_diagnostics"`
	WarningsAsErrors bool `toml:"warnings_as_errors" yaml:"warnings_as_errors"`
	SkipBorrowck     bool `toml:"skip_borrowck" yaml:"skip_borrowck"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Dir     string `toml:"dir" yaml:"dir"` // пусто: $XDG_CACHE_HOME/vais
}

type TraceConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Mode   string `toml:"mode" yaml:"mode"`
	Format string `toml:"format" yaml:"format"`
	Output string `toml:"output" yaml:"output"`
}

// DefaultConfig is used when no config file is found.
func DefaultConfig() Config {
	return Config{
		Check: CheckConfig{MaxDiagnostics: 200},
		Trace: TraceConfig{Level: "off", Mode: "stream"},
	}
}

// FindConfig walks up from startDir looking for a config file.
func FindConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to resolve start directory")
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", false, errors.Wrapf(err, "failed to stat %q", candidate)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadConfig finds and reads the config for startDir, falling back to
// DefaultConfig when there is none.
func LoadConfig(startDir string) (Config, error) {
	path, ok, err := FindConfig(startDir)
	if err != nil || !ok {
		return DefaultConfig(), err
	}
	return ReadConfig(path)
}

// ReadConfig decodes a TOML or YAML config file over the defaults.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, errors.Wrapf(err, "%s: failed to parse TOML", path)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, errors.Errorf("%s: unknown key %s", path, undecoded[0])
		}
		if meta.IsDefined("cache") && !meta.IsDefined("cache", "enabled") {
			cfg.Cache.Enabled = true
		}
	case ".yaml", ".yml":
		// #nosec G304 -- path comes from FindConfig or the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "%s: failed to read", path)
		}
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return Config{}, errors.Wrapf(err, "%s: failed to parse YAML", path)
		}
		if err := node.Decode(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "%s: invalid config", path)
		}
		if yamlHasKey(&node, "cache") && !yamlHasKey(&node, "cache", "enabled") {
			cfg.Cache.Enabled = true
		}
	default:
		return Config{}, errors.Errorf("%s: unsupported config format", path)
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return cfg, nil
}

// yamlHasKey reports whether the mapping path keys exists in a document.
func yamlHasKey(doc *yaml.Node, keys ...string) bool {
	n := doc
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	for _, k := range keys {
		if n.Kind != yaml.MappingNode {
			return false
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == k {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil {
			return false
		}
		n = next
	}
	return true
}

// Validate checks numeric ranges and trace settings.
func (c Config) Validate() error {
	if c.Check.Jobs < 0 {
		return errors.Errorf("check.jobs must not be negative, got %d", c.Check.Jobs)
	}
	if c.Check.ModuleJobs < 0 {
		return errors.Errorf("check.module_jobs must not be negative, got %d", c.Check.ModuleJobs)
	}
	if c.Check.MaxDiagnostics < 0 {
		return errors.Errorf("check.max_diagnostics must not be negative, got %d", c.Check.MaxDiagnostics)
	}
	_, err := c.TracerConfig()
	return err
}

// TracerConfig converts the [trace] table.
func (c Config) TracerConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, errors.Wrap(err, "trace.level")
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, errors.Wrap(err, "trace.mode")
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, errors.Wrap(err, "trace.format")
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: c.Trace.Output,
	}, nil
}
