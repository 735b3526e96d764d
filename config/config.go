// Package config loads the minictl runtime configuration file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minictl/minictl/pkg/cgroup"
)

// Config is the runtime configuration of minictl
type Config struct {
	Cgroup    CgroupConfig `yaml:"cgroup"`
	ImagesDir string       `yaml:"images_dir"`
	Log       LogConfig    `yaml:"log"`

	// Seccomp loads the default deny list filter for every launch
	Seccomp bool `yaml:"seccomp"`
}

// CgroupConfig locates the cgroup v2 hierarchy
type CgroupConfig struct {
	Root   string `yaml:"root"`
	Prefix string `yaml:"prefix"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Cgroup: CgroupConfig{
			Root:   cgroup.DefaultRoot,
			Prefix: cgroup.DefaultPrefix,
		},
		ImagesDir: "images",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks that a config is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: invalid level %q (must be debug, info, warn or error)", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: invalid format %q (must be console or json)", c.Log.Format))
	}
	if c.Cgroup.Root == "" {
		errs = append(errs, "cgroup.root is required")
	}
	if c.Cgroup.Prefix == "" || strings.Contains(c.Cgroup.Prefix, "..") {
		errs = append(errs, fmt.Sprintf("cgroup.prefix: invalid prefix %q", c.Cgroup.Prefix))
	}
	if c.ImagesDir == "" {
		errs = append(errs, "images_dir is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
