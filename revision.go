package repovul

import (
	"bytes"
	"encoding/json"
	"time"
)

// Revision is a specific commit of a specific repository, augmented with the
// per-language byte counts the classifier reported at that commit.
type Revision struct {
	Commit  string
	RepoURL string
	Date    time.Time
	// Languages maps language name to byte count.
	Languages map[string]int64
	// Size is the sum over Languages.
	Size int64
}

// MarshalJSON implements json.Marshaler.
//
// Field order is fixed; Languages keys come out sorted courtesy of
// encoding/json map handling.
func (r Revision) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	w := fieldWriter{buf: &b}
	w.field("commit", r.Commit)
	w.field("repo_url", r.RepoURL)
	w.field("date", r.Date.UTC().Format(time.RFC3339))
	w.field("languages", r.Languages)
	w.field("size", r.Size)
	if w.err != nil {
		return nil, w.err
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Revision) UnmarshalJSON(data []byte) error {
	var raw struct {
		Commit    string           `json:"commit"`
		RepoURL   string           `json:"repo_url"`
		Date      time.Time        `json:"date"`
		Languages map[string]int64 `json:"languages"`
		Size      int64            `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Commit = raw.Commit
	r.RepoURL = raw.RepoURL
	r.Date = raw.Date
	r.Languages = raw.Languages
	r.Size = raw.Size
	return nil
}
