package convert

import (
	"context"
	"sort"
	"time"

	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
	"github.com/eyeballvul/repovul/cache"
	"github.com/eyeballvul/repovul/gitrepo"
	"github.com/eyeballvul/repovul/hittingset"
	"github.com/eyeballvul/repovul/osv"
)

// gateway is the slice of the repo gateway the engine needs. Satisfied by
// [gitrepo.Repo]; swapped out in tests.
type gateway interface {
	ResolveVersion(ctx context.Context, version string) (*repovul.VersionInfo, error)
	MeasureAt(ctx context.Context, commit string) (map[string]int64, int64, error)
}

var newGateway = func(repoURL, workdir string) gateway {
	return gitrepo.New(repoURL, workdir)
}

// task is everything one worker needs to convert one repository. The cache
// item is the worker's private copy.
type task struct {
	repoURL  string
	group    []osv.Advisory
	item     *cache.Item
	existing []repovul.Revision
}

// result is what a worker hands back to the driver.
type result struct {
	repoURL string
	vulns   []repovul.Vulnerability
	revs    []repovul.Revision
	item    *cache.Item
	status  StatusCode
}

// convertRepo runs one repository's conversion inside a scoped workdir.
//
// Gateway failures degrade into a non-OK status with empty outputs; the
// cache copy still carries whatever resolutions were made before the
// failure. Any other error aborts the run.
func convertRepo(ctx context.Context, workroot string, t task) (result, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "convert/convertRepo", "repo", t.repoURL)
	res := result{repoURL: t.repoURL, item: t.item, status: StatusOK}
	dir, cleanup, err := gitrepo.Workdir(workroot)
	if err != nil {
		return res, err
	}
	defer cleanup()
	vulns, revs, err := convertGroup(ctx, dir, t)
	if err != nil {
		if sc, ok := statusForErr(err); ok {
			zlog.Warn(ctx).
				Err(err).
				Str("status", string(sc)).
				Msg("skipping repository")
			res.status = sc
			return res, nil
		}
		return res, err
	}
	res.vulns, res.revs = vulns, revs
	return res, nil
}

// convertGroup turns one repository's advisories into vulnerability and
// revision records, mutating t.item as resolutions and solutions are
// computed.
func convertGroup(ctx context.Context, workdir string, t task) ([]repovul.Vulnerability, []repovul.Revision, error) {
	// Withdrawn advisories and advisories with no affected versions are
	// silently filtered.
	group := make([]osv.Advisory, 0, len(t.group))
	var withdrawn, noVersions int
	for i := range t.group {
		a := &t.group[i]
		switch {
		case a.IsWithdrawn():
			withdrawn++
		case len(a.AffectedVersions()) == 0:
			noVersions++
		default:
			group = append(group, *a)
		}
	}
	if withdrawn+noVersions > 0 {
		zlog.Info(ctx).
			Int("withdrawn", withdrawn).
			Int("no_affected_versions", noVersions).
			Msg("filtered advisories")
	}
	if len(group) == 0 {
		zlog.Info(ctx).Msg("no advisories with affected versions; skipping")
		return nil, nil, nil
	}

	affectedByID := make(map[string][]string, len(group))
	ids := make([]string, 0, len(group))
	allVersions := make(map[string]struct{})
	for i := range group {
		a := &group[i]
		vs := a.AffectedVersions()
		affectedByID[a.ID] = vs
		ids = append(ids, a.ID)
		for _, v := range vs {
			allVersions[v] = struct{}{}
		}
	}

	// Resolve every version, consulting the cache first. The gateway
	// clones lazily, so a fully-cached repo never touches the network.
	g := newGateway(t.repoURL, workdir)
	versionsInfo := make(map[string]*repovul.VersionInfo, len(allVersions))
	for _, v := range sortedKeys(allVersions) {
		if info, ok := t.item.VersionsInfo[v]; ok {
			versionsInfo[v] = info
			continue
		}
		info, err := g.ResolveVersion(ctx, v)
		if err != nil {
			return nil, nil, err
		}
		t.item.VersionsInfo[v] = info
		versionsInfo[v] = info
	}

	// Unresolved versions degrade into filtered-out input; advisories
	// left with nothing are dropped.
	var unresolved int
	for v, info := range versionsInfo {
		if info == nil {
			unresolved++
			delete(allVersions, v)
		}
	}
	if unresolved > 0 {
		zlog.Info(ctx).
			Int("unresolved", unresolved).
			Int("total", len(versionsInfo)).
			Msg("versions not found by git")
		keep := ids[:0]
		for _, id := range ids {
			vs := affectedByID[id][:0]
			for _, v := range affectedByID[id] {
				if _, ok := allVersions[v]; ok {
					vs = append(vs, v)
				}
			}
			if len(vs) == 0 {
				delete(affectedByID, id)
				continue
			}
			affectedByID[id] = vs
			keep = append(keep, id)
		}
		ids = keep
		if len(ids) == 0 {
			zlog.Info(ctx).Msg("no resolvable versions; skipping")
			return nil, nil, nil
		}
	}

	versionDates := make(map[string]int64, len(allVersions))
	for v := range allVersions {
		versionDates[v] = versionsInfo[v].Date
	}

	lists := make([][]string, len(ids))
	for i, id := range ids {
		lists[i] = affectedByID[id]
	}
	hs, err := solveWithCache(ctx, t.item, lists, versionDates)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info(ctx).Strs("versions", hs).Msg("minimum hitting set")

	revisions, err := materializeRevisions(ctx, g, t, hs, versionsInfo)
	if err != nil {
		return nil, nil, err
	}

	vulns := make([]repovul.Vulnerability, 0, len(ids))
	inHS := make(map[string]struct{}, len(hs))
	for _, v := range hs {
		inHS[v] = struct{}{}
	}
	for i := range group {
		a := &group[i]
		if _, ok := affectedByID[a.ID]; !ok {
			continue
		}
		var commits []string
		for _, v := range affectedByID[a.ID] {
			if _, ok := inHS[v]; ok {
				commits = append(commits, versionsInfo[v].Commit)
			}
		}
		sort.Strings(commits)
		var summary *string
		if a.Summary != "" {
			s := a.Summary
			summary = &s
		}
		vulns = append(vulns, repovul.Vulnerability{
			ID:        a.ID,
			Published: a.Published,
			Modified:  a.Modified,
			Details:   a.Details,
			Summary:   summary,
			Severity:  a.Severity,
			RepoURL:   t.repoURL,
			CWEs:      a.CWEs(),
			Commits:   commits,
		})
	}
	return vulns, revisions, nil
}

// solveWithCache consults the item's memo before invoking the solver.
func solveWithCache(ctx context.Context, item *cache.Item, lists [][]string, dates map[string]int64) ([]string, error) {
	key := hittingset.Key(lists, dates)
	if hs, ok := item.HittingSetResults[key]; ok {
		zlog.Info(ctx).Msg("hitting set solution found in cache")
		solverCacheCounter.WithLabelValues("hit").Inc()
		return hs, nil
	}
	solverCacheCounter.WithLabelValues("miss").Inc()
	hs, err := hittingset.Solve(lists, dates)
	if err != nil {
		return nil, err
	}
	item.HittingSetResults[key] = hs
	return hs, nil
}

// materializeRevisions produces one revision per distinct commit in the
// hitting set, reusing stored revisions and measuring only new commits.
func materializeRevisions(ctx context.Context, g gateway, t task, hs []string, versionsInfo map[string]*repovul.VersionInfo) ([]repovul.Revision, error) {
	existing := make(map[string]repovul.Revision, len(t.existing))
	for _, r := range t.existing {
		existing[r.Commit] = r
	}
	byCommit := make(map[string]repovul.Revision, len(hs))
	for _, v := range hs {
		info := versionsInfo[v]
		if _, ok := byCommit[info.Commit]; ok {
			continue
		}
		if r, ok := existing[info.Commit]; ok {
			byCommit[info.Commit] = r
			continue
		}
		zlog.Info(ctx).Str("version", v).Msg("computing code sizes")
		languages, size, err := g.MeasureAt(ctx, info.Commit)
		if err != nil {
			return nil, err
		}
		byCommit[info.Commit] = repovul.Revision{
			Commit:    info.Commit,
			RepoURL:   t.repoURL,
			Date:      time.Unix(info.Date, 0).UTC(),
			Languages: languages,
			Size:      size,
		}
	}
	commits := make([]string, 0, len(byCommit))
	for c := range byCommit {
		commits = append(commits, c)
	}
	sort.Strings(commits)
	out := make([]repovul.Revision, 0, len(commits))
	for _, c := range commits {
		out = append(out, byCommit[c])
	}
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
