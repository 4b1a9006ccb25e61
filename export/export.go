// Package export moves the record store to and from the flat-file JSON
// tree tracked in the data repository:
//
//	vulns/<repo_name>/<id>.json
//	revisions/<repo_name>/<commit>.json
//
// Field order within each file is fixed and the trees are sorted, so a
// re-export of identical data is byte-identical.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
	"github.com/eyeballvul/repovul/datastore"
)

// RepoName derives the directory name for a repository URL: scheme
// stripped, host and path components joined by underscores.
func RepoName(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return strings.ReplaceAll(repoURL, "/", "_")
	}
	name := u.Host + strings.TrimSuffix(u.Path, "/")
	return strings.ReplaceAll(name, "/", "_")
}

// Export writes every record to dataDir. It refuses to touch an existing
// directory; back it up or remove it first.
func Export(ctx context.Context, store datastore.Store, dataDir string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "export/Export")
	if _, err := os.Stat(dataDir); err == nil {
		return fmt.Errorf("export: data directory %q already exists", dataDir)
	} else if !os.IsNotExist(err) {
		return err
	}
	vulns, err := store.Vulnerabilities(ctx)
	if err != nil {
		return err
	}
	revs, err := store.Revisions(ctx)
	if err != nil {
		return err
	}
	for i := range vulns {
		v := &vulns[i]
		p := filepath.Join(dataDir, "vulns", RepoName(v.RepoURL), v.ID+".json")
		if err := writeJSON(p, v); err != nil {
			return err
		}
	}
	for i := range revs {
		r := &revs[i]
		p := filepath.Join(dataDir, "revisions", RepoName(r.RepoURL), r.Commit+".json")
		if err := writeJSON(p, r); err != nil {
			return err
		}
	}
	zlog.Info(ctx).
		Int("vulnerabilities", len(vulns)).
		Int("revisions", len(revs)).
		Str("dir", dataDir).
		Msg("exported")
	return nil
}

// Import loads the flat-file tree into the store via per-repo replacement
// transactions.
func Import(ctx context.Context, store datastore.Store, dataDir string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "export/Import")
	var vulns []repovul.Vulnerability
	if err := readTree(filepath.Join(dataDir, "vulns"), func(b []byte) error {
		var v repovul.Vulnerability
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		vulns = append(vulns, v)
		return nil
	}); err != nil {
		return err
	}
	var revs []repovul.Revision
	if err := readTree(filepath.Join(dataDir, "revisions"), func(b []byte) error {
		var r repovul.Revision
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		revs = append(revs, r)
		return nil
	}); err != nil {
		return err
	}

	vulnsByRepo := make(map[string][]repovul.Vulnerability)
	for _, v := range vulns {
		vulnsByRepo[v.RepoURL] = append(vulnsByRepo[v.RepoURL], v)
	}
	revsByRepo := make(map[string][]repovul.Revision)
	for _, r := range revs {
		revsByRepo[r.RepoURL] = append(revsByRepo[r.RepoURL], r)
	}
	repos := make(map[string]struct{})
	for u := range vulnsByRepo {
		repos[u] = struct{}{}
	}
	for u := range revsByRepo {
		repos[u] = struct{}{}
	}
	ordered := make([]string, 0, len(repos))
	for u := range repos {
		ordered = append(ordered, u)
	}
	sort.Strings(ordered)
	for _, u := range ordered {
		if err := store.UpdateRepo(ctx, u, vulnsByRepo[u], revsByRepo[u]); err != nil {
			return err
		}
	}
	zlog.Info(ctx).
		Int("vulnerabilities", len(vulns)).
		Int("revisions", len(revs)).
		Int("repos", len(ordered)).
		Msg("imported")
	return nil
}

func readTree(root string, each func([]byte) error) error {
	matches, err := filepath.Glob(filepath.Join(root, "*", "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(matches)
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return err
		}
		if err := each(b); err != nil {
			return fmt.Errorf("export: reading %q: %w", m, err)
		}
	}
	return nil
}

// writeJSON writes v indented, with a trailing newline, creating parents
// as needed.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
