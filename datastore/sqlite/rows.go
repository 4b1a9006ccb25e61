package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/eyeballvul/repovul"
)

// Timestamps are stored as RFC 3339 UTC strings, which compare
// lexicographically in date order; severity, cwes, commits, and languages
// are opaque JSON columns.

func vulnRow(v *repovul.Vulnerability) ([]interface{}, error) {
	var summary sql.NullString
	if v.Summary != nil {
		summary = sql.NullString{String: *v.Summary, Valid: true}
	}
	var severity sql.NullString
	if v.Severity != nil {
		b, err := json.Marshal(v.Severity)
		if err != nil {
			return nil, err
		}
		severity = sql.NullString{String: string(b), Valid: true}
	}
	cwes, err := json.Marshal(sorted(v.CWEs))
	if err != nil {
		return nil, err
	}
	commits, err := json.Marshal(sorted(v.Commits))
	if err != nil {
		return nil, err
	}
	return []interface{}{
		v.ID,
		v.Published.UTC().Format(time.RFC3339),
		v.Modified.UTC().Format(time.RFC3339),
		v.Details,
		summary,
		severity,
		v.RepoURL,
		string(cwes),
		string(commits),
	}, nil
}

func revRow(r *repovul.Revision) ([]interface{}, error) {
	languages, err := json.Marshal(r.Languages)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		r.RepoURL,
		r.Commit,
		r.Date.UTC().Format(time.RFC3339),
		string(languages),
		r.Size,
	}, nil
}

func (s *Store) queryVulnerabilities(ctx context.Context, q string, args []interface{}) ([]repovul.Vulnerability, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repovul.Vulnerability
	for rows.Next() {
		var (
			v                   repovul.Vulnerability
			published, modified string
			summary, severity   sql.NullString
			cwes, commits       string
		)
		if err := rows.Scan(&v.ID, &published, &modified, &v.Details, &summary, &severity, &v.RepoURL, &cwes, &commits); err != nil {
			return nil, err
		}
		if v.Published, err = time.Parse(time.RFC3339, published); err != nil {
			return nil, err
		}
		if v.Modified, err = time.Parse(time.RFC3339, modified); err != nil {
			return nil, err
		}
		if summary.Valid {
			str := summary.String
			v.Summary = &str
		}
		if severity.Valid {
			if err := json.Unmarshal([]byte(severity.String), &v.Severity); err != nil {
				return nil, err
			}
		}
		if err := json.Unmarshal([]byte(cwes), &v.CWEs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(commits), &v.Commits); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) queryRevisions(ctx context.Context, q string, args []interface{}) ([]repovul.Revision, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []repovul.Revision
	for rows.Next() {
		var (
			r         repovul.Revision
			date      string
			languages string
		)
		if err := rows.Scan(&r.RepoURL, &r.Commit, &date, &languages, &r.Size); err != nil {
			return nil, err
		}
		if r.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(languages), &r.Languages); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func sorted(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}
