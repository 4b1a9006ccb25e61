// Package convert orchestrates the OSV-to-repovul conversion: it groups
// advisories by repository, dispatches per-repo conversions across workers,
// and applies each repository's results to the record store and cache.
package convert

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/eyeballvul/repovul/cache"
	"github.com/eyeballvul/repovul/config"
	"github.com/eyeballvul/repovul/datastore"
	"github.com/eyeballvul/repovul/datastore/sqlite"
	"github.com/eyeballvul/repovul/osv"
)

var (
	repoStatusCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repovul",
			Subsystem: "convert",
			Name:      "repos_total",
			Help:      "Total number of repository conversions, by final status.",
		},
		[]string{"status"},
	)
	solverCacheCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repovul",
			Subsystem: "convert",
			Name:      "solver_cache_total",
			Help:      "Hitting-set solver cache hits and misses.",
		},
		[]string{"outcome"},
	)
)

// Converter owns a conversion run: the loaded advisory groups, the cache,
// and the record store. The cache and store are only ever touched from the
// driver goroutine.
type Converter struct {
	cfg    *config.Config
	store  datastore.Store
	cache  *cache.Cache
	groups map[string][]osv.Advisory

	// Workers bounds concurrent repository conversions. Zero means
	// GOMAXPROCS.
	Workers int
}

// New loads the OSV tree, the cache, and opens the record store.
func New(ctx context.Context, cfg *config.Config) (*Converter, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "convert/New")
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	ch, err := cache.Read(cfg.CacheFile(), cfg.CacheWriteInterval())
	if err != nil {
		return nil, fmt.Errorf("convert: reading cache: %w", err)
	}
	groups, err := osv.NewLoader(cfg.OSVDir(), cfg.Ecosystems, cfg.SupportedDomains).Groups(ctx)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return nil, err
	}
	return &Converter{
		cfg:    cfg,
		store:  store,
		cache:  ch,
		groups: groups,
	}, nil
}

// Close flushes the cache and releases the store.
func (c *Converter) Close(ctx context.Context) error {
	if err := c.cache.Flush(ctx); err != nil {
		c.store.Close()
		return err
	}
	return c.store.Close()
}

// Repos returns every known repository URL, sorted.
func (c *Converter) Repos() []string {
	out := make([]string, 0, len(c.groups))
	for u := range c.groups {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// ConvertOne converts a single repository.
func (c *Converter) ConvertOne(ctx context.Context, repoURL string) error {
	if _, ok := c.groups[repoURL]; !ok {
		return fmt.Errorf("convert: no advisories for repository %q", repoURL)
	}
	return c.convertList(ctx, []string{repoURL})
}

// ConvertAll converts every known repository, in sorted order.
func (c *Converter) ConvertAll(ctx context.Context) error {
	return c.convertList(ctx, c.Repos())
}

// ConvertRange converts the sorted repository list sliced to [start, end).
func (c *Converter) ConvertRange(ctx context.Context, start, end int) error {
	repos := c.Repos()
	if start < 0 {
		start = 0
	}
	if end > len(repos) {
		end = len(repos)
	}
	if start >= end {
		return nil
	}
	return c.convertList(ctx, repos[start:end])
}

func (c *Converter) convertList(ctx context.Context, repoURLs []string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "convert/Converter.convertList")
	tasks, err := c.prepare(ctx, repoURLs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, wctx := errgroup.WithContext(ctx)
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)

	zlog.Info(ctx).
		Int("repos", len(tasks)).
		Int("workers", workers).
		Msg("converting")
	results := make(chan result)
	go func() {
		defer close(results)
		for i := range tasks {
			t := tasks[i]
			eg.Go(func() error {
				res, err := convertRepo(wctx, c.cfg.Workdir, t)
				if err != nil {
					return fmt.Errorf("%s: %w", t.repoURL, err)
				}
				select {
				case results <- res:
				case <-wctx.Done():
					return wctx.Err()
				}
				return nil
			})
		}
		eg.Wait()
	}()

	// Driver side: single writer for the store and the cache. Store and
	// cache effects are per-repo disjoint, so completion order does not
	// matter.
	byStatus := make(map[StatusCode][]string)
	start := time.Now()
	var done int
	var driverErr error
	for res := range results {
		if driverErr != nil {
			continue // drain; workers are being cancelled
		}
		if err := c.apply(ctx, res); err != nil {
			driverErr = err
			cancel()
			continue
		}
		byStatus[res.status] = append(byStatus[res.status], res.repoURL)
		repoStatusCounter.WithLabelValues(string(res.status)).Inc()
		done++
		elapsed := time.Since(start)
		eta := time.Duration(0)
		if done > 0 {
			eta = elapsed / time.Duration(done) * time.Duration(len(tasks)-done)
		}
		zlog.Info(ctx).
			Int("done", done).
			Int("total", len(tasks)).
			Dur("elapsed", elapsed).
			Dur("eta", eta).
			Str("repo", res.repoURL).
			Msg("finished processing")
	}
	werr := eg.Wait()
	if ferr := c.cache.Flush(ctx); ferr != nil && driverErr == nil && werr == nil {
		return ferr
	}
	switch {
	case driverErr != nil:
		return driverErr
	case werr != nil:
		return werr
	}
	displayStatistics(ctx, byStatus, len(tasks))
	return nil
}

// prepare assembles per-repo arguments: the advisory group, a private copy
// of the cache item, and a snapshot of the repo's stored revisions.
func (c *Converter) prepare(ctx context.Context, repoURLs []string) ([]task, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "convert/Converter.prepare")
	start := time.Now()
	tasks := make([]task, 0, len(repoURLs))
	for _, u := range repoURLs {
		group, ok := c.groups[u]
		if !ok {
			return nil, fmt.Errorf("convert: no advisories for repository %q", u)
		}
		c.cache.Initialize(u)
		existing, err := c.store.RevisionsForRepo(ctx, u)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{
			repoURL:  u,
			group:    group,
			item:     c.cache.Get(u).Clone(),
			existing: existing,
		})
	}
	zlog.Info(ctx).
		Int("repos", len(tasks)).
		Dur("elapsed", time.Since(start)).
		Msg("arguments prepared")
	return tasks, nil
}

// apply commits one repository's results: the atomic per-repo store
// replacement, then the cache delta if the worker's copy changed.
func (c *Converter) apply(ctx context.Context, res result) error {
	if err := c.store.UpdateRepo(ctx, res.repoURL, res.vulns, res.revs); err != nil {
		return fmt.Errorf("%s: %w", res.repoURL, err)
	}
	if !res.item.Equal(c.cache.Get(res.repoURL)) {
		zlog.Info(ctx).
			Str("repo", res.repoURL).
			Msg("cache updated; writing")
		c.cache.Set(res.repoURL, res.item)
		if err := c.cache.Write(ctx); err != nil {
			return err
		}
	}
	return nil
}

func displayStatistics(ctx context.Context, byStatus map[StatusCode][]string, total int) {
	zlog.Info(ctx).Msg("done processing repositories")
	zlog.Info(ctx).
		Int("ok", len(byStatus[StatusOK])).
		Int("total", total).
		Msg("statistics")
	for _, sc := range nonOKStatuses {
		repos := byStatus[sc]
		if len(repos) == 0 {
			continue
		}
		zlog.Info(ctx).
			Int("count", len(repos)).
			Int("total", total).
			Str("description", sc.Describe()).
			Strs("repos", repos).
			Msg(string(sc))
	}
}
