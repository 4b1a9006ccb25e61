// Package config loads the repovul TOML configuration and derives the
// filesystem layout from it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the repovul configuration.
//
// It is loaded once at startup and passed explicitly to every component that
// needs it; there is no package-global state.
type Config struct {
	// Ecosystems to download and convert, e.g. "PyPI", "npm".
	Ecosystems []string `toml:"ecosystems"`
	// SupportedDomains is the allow-list of repository URL hosts. Repo
	// groups outside it are dropped at load.
	SupportedDomains []string `toml:"supported_domains"`
	// CachePath is the directory holding the OSV download and the
	// conversion cache blob.
	CachePath string `toml:"cache_path"`
	// CacheWriteIntervalSeconds bounds how often the cache blob is
	// rewritten. The on-disk cache is never more than one repo's progress
	// behind regardless.
	CacheWriteIntervalSeconds int `toml:"cache_write_interval"`
	// Workdir is where temporary clones are made. Each repo conversion
	// uses its own subdirectory, removed on all exit paths.
	Workdir string `toml:"workdir"`
	// ProjectDir anchors the db/ and data/ trees. Defaults to the
	// current directory.
	ProjectDir string `toml:"project_dir"`
}

// Load reads the TOML file at path.
func Load(path string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if un := md.Undecoded(); len(un) != 0 {
		keys := make([]string, len(un))
		for i, k := range un {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if c.ProjectDir == "" {
		c.ProjectDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	c.CachePath, err = expandHome(c.CachePath)
	if err != nil {
		return nil, err
	}
	c.Workdir, err = expandHome(c.Workdir)
	if err != nil {
		return nil, err
	}
	switch {
	case c.CachePath == "":
		return nil, fmt.Errorf("config: cache_path is required")
	case c.Workdir == "":
		return nil, fmt.Errorf("config: workdir is required")
	case len(c.Ecosystems) == 0:
		return nil, fmt.Errorf("config: at least one ecosystem is required")
	}
	return &c, nil
}

func expandHome(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p[1:], "/")), nil
	}
	return p, nil
}

// CacheWriteInterval is CacheWriteIntervalSeconds as a Duration.
func (c *Config) CacheWriteInterval() time.Duration {
	return time.Duration(c.CacheWriteIntervalSeconds) * time.Second
}

// OSVDir is where the downloaded OSV tree lives, one subdirectory per
// ecosystem.
func (c *Config) OSVDir() string { return filepath.Join(c.CachePath, "osv") }

// CacheFile is the conversion cache blob.
func (c *Config) CacheFile() string { return filepath.Join(c.CachePath, "cache.json") }

// DBFile is the SQLite record store.
func (c *Config) DBFile() string { return filepath.Join(c.ProjectDir, "db", "repovul.db") }

// DataDir is the root of the flat-file JSON export.
func (c *Config) DataDir() string { return filepath.Join(c.ProjectDir, "data") }

// VulnsDir holds exported vulnerability records.
func (c *Config) VulnsDir() string { return filepath.Join(c.DataDir(), "vulns") }

// RevisionsDir holds exported revision records.
func (c *Config) RevisionsDir() string { return filepath.Join(c.DataDir(), "revisions") }

// EnsureDirs creates the directories conversion needs. The data/ and db/
// trees are deliberately left alone: export and import refuse to clobber
// them, so their absence is meaningful.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.CachePath, c.OSVDir(), c.Workdir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
