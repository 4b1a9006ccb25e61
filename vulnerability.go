package repovul

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Severity is an OSV severity entry, carried through verbatim.
type Severity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// Vulnerability is one advisory mapped onto the dataset: the OSV fields that
// survive conversion, the extracted repository URL, and the subset of the
// repository's hitting set that covers this advisory.
type Vulnerability struct {
	ID        string
	Published time.Time
	Modified  time.Time
	Details   string
	// Summary is nil when the advisory carries none. The distinction matters
	// for the exported JSON, where the key is omitted entirely.
	Summary  *string
	Severity []Severity
	RepoURL  string
	// CWEs, deduplicated and sorted.
	CWEs []string
	// Commits is sorted. Every element has a matching Revision with the same
	// RepoURL.
	Commits []string
}

// The exported files are tracked by git, so field order must be stable.
// encoding/json offers no ordering control over struct tags alone once
// optional keys enter the picture, hence the hand-rolled marshaller.

// MarshalJSON implements json.Marshaler.
func (v Vulnerability) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	w := fieldWriter{buf: &b}
	w.field("id", v.ID)
	w.field("published", v.Published.UTC().Format(time.RFC3339))
	w.field("modified", v.Modified.UTC().Format(time.RFC3339))
	w.field("details", v.Details)
	if v.Summary != nil {
		w.field("summary", *v.Summary)
	}
	if v.Severity != nil {
		w.field("severity", v.Severity)
	}
	w.field("repo_url", v.RepoURL)
	w.field("cwes", sortedCopy(v.CWEs))
	w.field("commits", sortedCopy(v.Commits))
	if w.err != nil {
		return nil, w.err
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vulnerability) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string     `json:"id"`
		Published time.Time  `json:"published"`
		Modified  time.Time  `json:"modified"`
		Details   string     `json:"details"`
		Summary   *string    `json:"summary"`
		Severity  []Severity `json:"severity"`
		RepoURL   string     `json:"repo_url"`
		CWEs      []string   `json:"cwes"`
		Commits   []string   `json:"commits"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.ID = raw.ID
	v.Published = raw.Published
	v.Modified = raw.Modified
	v.Details = raw.Details
	v.Summary = raw.Summary
	v.Severity = raw.Severity
	v.RepoURL = raw.RepoURL
	v.CWEs = raw.CWEs
	v.Commits = raw.Commits
	return nil
}

type fieldWriter struct {
	buf   *bytes.Buffer
	err   error
	wrote bool
}

func (w *fieldWriter) field(name string, val interface{}) {
	if w.err != nil {
		return
	}
	if w.wrote {
		w.buf.WriteByte(',')
	}
	w.wrote = true
	k, err := json.Marshal(name)
	if err != nil {
		w.err = err
		return
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	v, err := json.Marshal(val)
	if err != nil {
		w.err = err
		return
	}
	w.buf.Write(v)
}

func sortedCopy(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}
