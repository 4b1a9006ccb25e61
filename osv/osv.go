// Package osv reads OSV-formatted advisories from the local download tree
// and groups them by upstream repository.
package osv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
)

// Loader walks an on-disk OSV tree laid out as
// <root>/<ecosystem>/<id>.json.
type Loader struct {
	// Root of the OSV tree.
	Root string
	// Ecosystems to read. Ecosystems present on disk but not listed here
	// are skipped.
	Ecosystems []string
	// Allow is a bool-and-map-of-bool over repository URL hosts. Groups
	// whose host is not an extant entry are dropped.
	Allow map[string]bool
}

// NewLoader assembles a Loader over the provided allow-list of domains.
func NewLoader(root string, ecosystems, domains []string) *Loader {
	allow := make(map[string]bool, len(domains))
	for _, d := range domains {
		allow[d] = true
	}
	return &Loader{Root: root, Ecosystems: ecosystems, Allow: allow}
}

// Groups reads every advisory under the configured ecosystems and returns
// them grouped by extracted repository URL, with unsupported domains
// filtered out.
func (l *Loader) Groups(ctx context.Context) (map[string][]Advisory, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "osv/Loader.Groups")
	byRepo := make(map[string][]Advisory)
	filtered := make(map[string]struct{})
	var ct int
	for _, eco := range l.Ecosystems {
		dir := filepath.Join(l.Root, eco)
		ents, err := os.ReadDir(dir)
		switch {
		case err == nil:
		case os.IsNotExist(err):
			zlog.Warn(ctx).
				Str("ecosystem", eco).
				Msg("ecosystem directory missing; run download first?")
			continue
		default:
			return nil, err
		}
		for _, ent := range ents {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
				continue
			}
			a, err := readAdvisory(filepath.Join(dir, ent.Name()))
			if err != nil {
				return nil, err
			}
			ct++
			u := a.RepoURL()
			if !l.Allow[domain(u)] {
				filtered[u] = struct{}{}
				continue
			}
			byRepo[u] = append(byRepo[u], *a)
		}
	}
	zlog.Info(ctx).
		Int("advisories", ct).
		Int("repos", len(byRepo)).
		Int("unsupported", len(filtered)).
		Msg("grouped advisories by repository")
	return byRepo, nil
}

func readAdvisory(path string) (*Advisory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Advisory
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, &repovul.Error{
			Op:      "osv.readAdvisory",
			Kind:    repovul.ErrValidation,
			Message: fmt.Sprintf("malformed advisory %q", path),
			Inner:   err,
		}
	}
	return &a, nil
}

// Domain reports the host portion of a repository URL, the value matched
// against the configured allow-list.
func domain(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return ""
	}
	return u.Host
}
