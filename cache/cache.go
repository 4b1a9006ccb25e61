// Package cache is the persistent per-repository memo of expensive
// conversion results: git version resolutions (including negatives) and
// hitting-set solutions.
//
// The whole state lives in one JSON blob with stable key ordering, so the
// file diffs cleanly under version control. The blob is owned by the
// orchestrator; workers get copies of single items and hand back mutated
// copies.
package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
)

// Item is the cached state for one repository.
type Item struct {
	// VersionsInfo records every resolution attempt; nil means git did
	// not know the version.
	VersionsInfo map[string]*repovul.VersionInfo `json:"versions_info"`
	// HittingSetResults maps the canonical instance key to the solution.
	HittingSetResults map[string][]string `json:"hitting_set_results"`
}

// NewItem returns an empty Item.
func NewItem() *Item {
	return &Item{
		VersionsInfo:      make(map[string]*repovul.VersionInfo),
		HittingSetResults: make(map[string][]string),
	}
}

// Clone deep-copies the item. Workers operate on clones so the
// orchestrator's state is untouched by a failed conversion.
func (i *Item) Clone() *Item {
	out := NewItem()
	for k, v := range i.VersionsInfo {
		if v == nil {
			out.VersionsInfo[k] = nil
			continue
		}
		cp := *v
		out.VersionsInfo[k] = &cp
	}
	for k, v := range i.HittingSetResults {
		out.HittingSetResults[k] = append([]string(nil), v...)
	}
	return out
}

// Equal reports whether two items hold the same state. It gates cache
// writes: an unchanged returned copy means nothing to persist.
func (i *Item) Equal(o *Item) bool {
	if len(i.VersionsInfo) != len(o.VersionsInfo) || len(i.HittingSetResults) != len(o.HittingSetResults) {
		return false
	}
	for k, v := range i.VersionsInfo {
		ov, ok := o.VersionsInfo[k]
		if !ok {
			return false
		}
		switch {
		case v == nil && ov == nil:
		case v == nil || ov == nil:
			return false
		case *v != *ov:
			return false
		}
	}
	for k, v := range i.HittingSetResults {
		ov, ok := o.HittingSetResults[k]
		if !ok || len(v) != len(ov) {
			return false
		}
		for n := range v {
			if v[n] != ov[n] {
				return false
			}
		}
	}
	return true
}

// Cache is the full memo, keyed by repository URL. Single-writer: only the
// orchestrator reads or writes it.
type Cache struct {
	path      string
	interval  time.Duration
	items     map[string]*Item
	dirty     bool
	lastWrite time.Time
}

// Read loads the blob at path. A missing file begins empty.
func Read(path string, interval time.Duration) (*Cache, error) {
	c := &Cache{
		path:     path,
		interval: interval,
		items:    make(map[string]*Item),
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &c.items); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	for _, it := range c.items {
		if it.VersionsInfo == nil {
			it.VersionsInfo = make(map[string]*repovul.VersionInfo)
		}
		if it.HittingSetResults == nil {
			it.HittingSetResults = make(map[string][]string)
		}
	}
	return c, nil
}

// Initialize ensures an entry exists for repoURL.
func (c *Cache) Initialize(repoURL string) {
	if _, ok := c.items[repoURL]; !ok {
		c.items[repoURL] = NewItem()
		c.dirty = true
	}
}

// Get returns the item for repoURL, or nil if absent.
func (c *Cache) Get(repoURL string) *Item {
	return c.items[repoURL]
}

// Set replaces the item for repoURL and marks the cache dirty.
func (c *Cache) Set(repoURL string, it *Item) {
	c.items[repoURL] = it
	c.dirty = true
}

// Write persists the state if it is dirty and the configured interval has
// elapsed since the previous write. Flush ignores the interval.
func (c *Cache) Write(ctx context.Context) error {
	if !c.dirty || time.Since(c.lastWrite) < c.interval {
		return nil
	}
	return c.Flush(ctx)
}

// Flush unconditionally persists dirty state, atomically: serialize to a
// sibling temp file, then rename over the target.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.dirty {
		return nil
	}
	ctx = zlog.ContextWithValues(ctx, "component", "cache/Cache.Flush")
	b, err := json.MarshalIndent(c.items, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, c.path); err != nil {
		os.Remove(name)
		return err
	}
	c.dirty = false
	c.lastWrite = time.Now()
	zlog.Debug(ctx).
		Str("path", c.path).
		Int("repos", len(c.items)).
		Msg("cache written")
	return nil
}
