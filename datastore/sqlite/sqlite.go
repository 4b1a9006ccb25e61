// Package sqlite implements the record store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed" // embed the schema
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/sqlite3" // register the dialect
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/eyeballvul/repovul"
	"github.com/eyeballvul/repovul/datastore"
)

//go:embed schema.sql
var schema string

var (
	updateRepoCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repovul",
			Subsystem: "store",
			Name:      "updaterepo_total",
			Help:      "Total number of per-repo replacement transactions.",
		},
		[]string{"outcome"},
	)
	updateRepoDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "repovul",
			Subsystem: "store",
			Name:      "updaterepo_duration_seconds",
			Help:      "The duration of per-repo replacement transactions.",
		},
	)
)

var dialect = goqu.Dialect("sqlite3")

var vulnCols = []interface{}{"id", "published", "modified", "details", "summary", "severity", "repo_url", "cwes", "commits"}
var revCols = []interface{}{"repo_url", goqu.C("commit"), "date", "languages", "size"}

// Store is a SQLite-backed [datastore.Store].
type Store struct {
	db *sql.DB
}

var _ datastore.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and bootstraps
// the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/sqlite/Open")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	u := url.URL{
		Scheme: `file`,
		Opaque: path,
		RawQuery: url.Values{
			"_pragma": {
				"foreign_keys(1)",
				"journal_mode(WAL)",
				"busy_timeout(5000)",
			},
		}.Encode(),
	}
	db, err := sql.Open(`sqlite`, u.String())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: bootstrapping schema: %w", err)
	}
	zlog.Debug(ctx).Str("path", path).Msg("store open")
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateRepo implements datastore.Store.
//
// The replacement is a single transaction: delete both tables' rows for
// repoURL, insert the new ones, commit. A crash leaves either the old or
// the new set, never a mix.
func (s *Store) UpdateRepo(ctx context.Context, repoURL string, vulns []repovul.Vulnerability, revs []repovul.Revision) (err error) {
	defer func(start time.Time) {
		updateRepoDuration.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		updateRepoCounter.WithLabelValues(outcome).Inc()
	}(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerability WHERE repo_url = ?`, repoURL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM revision WHERE repo_url = ?`, repoURL); err != nil {
		return err
	}
	for i := range vulns {
		row, err := vulnRow(&vulns[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vulnerability (id, published, modified, details, summary, severity, repo_url, cwes, commits) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row...); err != nil {
			return err
		}
	}
	for i := range revs {
		row, err := revRow(&revs[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO revision (repo_url, "commit", date, languages, size) VALUES (?, ?, ?, ?, ?)`,
			row...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RevisionsForRepo implements datastore.Store.
func (s *Store) RevisionsForRepo(ctx context.Context, repoURL string) ([]repovul.Revision, error) {
	q, args, err := dialect.From("revision").
		Select(revCols...).
		Where(goqu.Ex{"repo_url": repoURL}).
		Order(goqu.C("commit").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return s.queryRevisions(ctx, q, args)
}

// Revisions implements datastore.Store.
func (s *Store) Revisions(ctx context.Context) ([]repovul.Revision, error) {
	q, args, err := dialect.From("revision").
		Select(revCols...).
		Order(goqu.C("repo_url").Asc(), goqu.C("commit").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return s.queryRevisions(ctx, q, args)
}

// VulnerabilitiesByCommit implements datastore.Store.
//
// Membership is strict JSON-array membership via json_each, never a
// substring test over the encoded column.
func (s *Store) VulnerabilitiesByCommit(ctx context.Context, commit string, w datastore.Window) ([]repovul.Vulnerability, error) {
	sel := dialect.From("vulnerability").
		Select(vulnCols...).
		Where(goqu.L("EXISTS (SELECT 1 FROM json_each(vulnerability.commits) WHERE json_each.value = ?)", commit))
	sel = applyWindow(sel, w)
	q, args, err := sel.Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return s.queryVulnerabilities(ctx, q, args)
}

// VulnerabilitiesByRepo implements datastore.Store.
func (s *Store) VulnerabilitiesByRepo(ctx context.Context, repoURL string, w datastore.Window) ([]repovul.Vulnerability, error) {
	sel := dialect.From("vulnerability").
		Select(vulnCols...).
		Where(goqu.Ex{"repo_url": repoURL})
	sel = applyWindow(sel, w)
	q, args, err := sel.Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return s.queryVulnerabilities(ctx, q, args)
}

// Vulnerabilities implements datastore.Store.
func (s *Store) Vulnerabilities(ctx context.Context) ([]repovul.Vulnerability, error) {
	q, args, err := dialect.From("vulnerability").
		Select(vulnCols...).
		Order(goqu.C("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	return s.queryVulnerabilities(ctx, q, args)
}

// Commits implements datastore.Store.
func (s *Store) Commits(ctx context.Context, repoURL string, w datastore.Window) ([]string, error) {
	sel := dialect.From("vulnerability").Select("commits")
	if repoURL != "" {
		sel = sel.Where(goqu.Ex{"repo_url": repoURL})
	}
	sel = applyWindow(sel, w)
	q, args, err := sel.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]struct{})
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var commits []string
		if err := json.Unmarshal([]byte(blob), &commits); err != nil {
			return nil, err
		}
		for _, c := range commits {
			set[c] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Repos implements datastore.Store.
func (s *Store) Repos(ctx context.Context) ([]string, error) {
	q, args, err := dialect.From("vulnerability").
		SelectDistinct("repo_url").
		Order(goqu.C("repo_url").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func applyWindow(sel *goqu.SelectDataset, w datastore.Window) *goqu.SelectDataset {
	if w.After != nil {
		sel = sel.Where(goqu.C("published").Gte(w.After.UTC().Format(time.RFC3339)))
	}
	if w.Before != nil {
		sel = sel.Where(goqu.C("published").Lt(w.Before.UTC().Format(time.RFC3339)))
	}
	return sel
}
