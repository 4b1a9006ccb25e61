package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, blob string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "repovul.toml")
	if err := os.WriteFile(p, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	p := writeConfig(t, `
ecosystems = ["PyPI", "npm"]
supported_domains = ["github.com"]
cache_path = "/tmp/repovul-cache"
cache_write_interval = 120
workdir = "/tmp/repovul-work"
project_dir = "/srv/repovul"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.CacheWriteInterval(), 2*time.Minute; got != want {
		t.Errorf("got: %v, want: %v", got, want)
	}
	if got, want := c.DBFile(), "/srv/repovul/db/repovul.db"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := c.OSVDir(), "/tmp/repovul-cache/osv"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := c.CacheFile(), "/tmp/repovul-cache/cache.json"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := c.VulnsDir(), "/srv/repovul/data/vulns"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	p := writeConfig(t, `
ecosystems = ["PyPI"]
cache_path = "/tmp/c"
workdir = "/tmp/w"
typo_key = true
`)
	if _, err := Load(p); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestLoadRequiredKeys(t *testing.T) {
	for name, blob := range map[string]string{
		"cache_path": `
ecosystems = ["PyPI"]
workdir = "/tmp/w"
`,
		"workdir": `
ecosystems = ["PyPI"]
cache_path = "/tmp/c"
`,
		"ecosystems": `
cache_path = "/tmp/c"
workdir = "/tmp/w"
`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, blob)); err == nil {
				t.Errorf("expected an error for missing %s", name)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	p := writeConfig(t, `
ecosystems = ["PyPI"]
cache_path = "~/.cache/repovul"
workdir = "/tmp/w"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".cache", "repovul"); c.CachePath != want {
		t.Errorf("got: %q, want: %q", c.CachePath, want)
	}
}
