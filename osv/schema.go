package osv

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/eyeballvul/repovul"
)

// See https://ossf.github.io/osv-schema/ for the spec.
//
// Only the fields conversion consumes are modeled; unknown fields are
// ignored by the decoder.
type (
	// Advisory is a single OSV entry.
	Advisory struct {
		SchemaVersion string             `json:"schema_version"`
		ID            string             `json:"id"`
		Modified      time.Time          `json:"modified"`
		Published     time.Time          `json:"published"`
		Withdrawn     time.Time          `json:"withdrawn"`
		Summary       string             `json:"summary"`
		Details       string             `json:"details"`
		Severity      []repovul.Severity `json:"severity"`
		Affected      []Affected         `json:"affected"`
		References    []Reference        `json:"references"`
		Database      json.RawMessage    `json:"database_specific"`
	}

	// Affected is one element of an advisory's affected list.
	Affected struct {
		Ranges   []Range         `json:"ranges"`
		Versions []string        `json:"versions"`
		Database json.RawMessage `json:"database_specific"`
	}

	// Range is a typed version range. Conversion only cares about GIT
	// ranges, which carry the upstream repository URL.
	Range struct {
		Type string `json:"type"`
		Repo string `json:"repo"`
	}

	// Reference is an external link attached to an advisory.
	Reference struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
)

// IsWithdrawn reports whether the advisory has been retracted by its
// publisher.
func (a *Advisory) IsWithdrawn() bool {
	return !a.Withdrawn.IsZero()
}

// RepoURL extracts the advisory's upstream repository URL.
//
// Precedence is deterministic: the first GIT range in document order wins;
// failing that, the first PACKAGE reference. The empty string means no URL
// could be determined, which the loader treats as an unsupported domain.
func (a *Advisory) RepoURL() string {
	for i := range a.Affected {
		for _, r := range a.Affected[i].Ranges {
			if r.Type == `GIT` && r.Repo != "" {
				return r.Repo
			}
		}
	}
	for _, ref := range a.References {
		if ref.Type == `PACKAGE` && ref.URL != "" {
			return ref.URL
		}
	}
	return ""
}

// AffectedVersions is the union of version strings over the affected list,
// deduplicated, in document order.
func (a *Advisory) AffectedVersions() []string {
	var out []string
	seen := make(map[string]struct{})
	for i := range a.Affected {
		for _, v := range a.Affected[i].Versions {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// CWEs returns the advisory's CWE identifiers, deduplicated and sorted.
//
// The OSV corpus carries these in the database_specific blob under
// "cwe_ids".
func (a *Advisory) CWEs() []string {
	var db struct {
		CWEIDs []string `json:"cwe_ids"`
	}
	if len(a.Database) != 0 {
		// Best-effort: a database_specific blob of an unexpected shape
		// just yields no CWEs.
		json.Unmarshal(a.Database, &db)
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, len(db.CWEIDs))
	for _, c := range db.CWEIDs {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
