package osv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"
)

const sampleAdvisory = `{
  "schema_version": "1.4.0",
  "id": "CVE-2021-0001",
  "published": "2021-09-01T00:00:00Z",
  "modified": "2021-09-02T00:00:00Z",
  "summary": "frobnicator overflow",
  "details": "An overflow in the frobnicator.",
  "severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N"}],
  "affected": [
    {
      "package": {"ecosystem": "PyPI", "name": "frob"},
      "ranges": [
        {"type": "ECOSYSTEM", "events": [{"introduced": "0"}]},
        {"type": "GIT", "repo": "https://github.com/example/frob", "events": [{"introduced": "0"}]}
      ],
      "versions": ["1.0.0", "1.1.0"]
    },
    {
      "package": {"ecosystem": "PyPI", "name": "frob"},
      "versions": ["1.1.0", "2.0.0"]
    }
  ],
  "references": [
    {"type": "PACKAGE", "url": "https://pypi.org/project/frob"}
  ],
  "database_specific": {"cwe_ids": ["CWE-787", "CWE-121", "CWE-787"], "unrelated": true}
}`

func TestAdvisoryParse(t *testing.T) {
	var a Advisory
	if err := json.Unmarshal([]byte(sampleAdvisory), &a); err != nil {
		t.Fatal(err)
	}
	if got, want := a.ID, "CVE-2021-0001"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if a.IsWithdrawn() {
		t.Error("advisory reported withdrawn")
	}
	if got, want := a.RepoURL(), "https://github.com/example/frob"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got, want := a.AffectedVersions(), []string{"1.0.0", "1.1.0", "2.0.0"}; !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
	if got, want := a.CWEs(), []string{"CWE-121", "CWE-787"}; !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestRepoURLFallback(t *testing.T) {
	// No GIT range: the first PACKAGE reference wins.
	a := Advisory{
		References: []Reference{
			{Type: "WEB", URL: "https://example.com/blog"},
			{Type: "PACKAGE", URL: "https://github.com/example/other"},
		},
	}
	if got, want := a.RepoURL(), "https://github.com/example/other"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	// Nothing usable: empty.
	if got := (&Advisory{}).RepoURL(); got != "" {
		t.Errorf("got: %q, want empty", got)
	}
}

func TestWithdrawn(t *testing.T) {
	var a Advisory
	blob := `{"id": "X", "withdrawn": "2022-01-01T00:00:00Z"}`
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		t.Fatal(err)
	}
	if !a.IsWithdrawn() {
		t.Error("advisory not reported withdrawn")
	}
}

func TestLoaderGroups(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	root := t.TempDir()
	write := func(eco, name, blob string) {
		t.Helper()
		dir := filepath.Join(root, eco)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(blob), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("PyPI", "CVE-2021-0001.json", sampleAdvisory)
	write("PyPI", "CVE-2021-0002.json", `{
  "id": "CVE-2021-0002",
  "details": "x",
  "affected": [{"ranges": [{"type": "GIT", "repo": "https://github.com/example/frob"}]}]
}`)
	write("PyPI", "CVE-2021-0003.json", `{
  "id": "CVE-2021-0003",
  "details": "x",
  "affected": [{"ranges": [{"type": "GIT", "repo": "https://gitlab.example.org/elsewhere/thing"}]}]
}`)
	// An ecosystem not in the configuration must be ignored.
	write("npm", "GHSA-aaaa.json", `{
  "id": "GHSA-aaaa",
  "details": "x",
  "affected": [{"ranges": [{"type": "GIT", "repo": "https://github.com/example/skipme"}]}]
}`)

	l := NewLoader(root, []string{"PyPI"}, []string{"github.com"})
	groups, err := l.Groups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups["https://github.com/example/frob"]
	if len(g) != 2 {
		t.Fatalf("got %d advisories, want 2", len(g))
	}
}

func TestLoaderRejectsMalformed(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	root := t.TempDir()
	dir := filepath.Join(root, "PyPI")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"id": 42}`), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(root, []string{"PyPI"}, []string{"github.com"})
	if _, err := l.Groups(ctx); err == nil {
		t.Error("expected a validation error")
	}
}
