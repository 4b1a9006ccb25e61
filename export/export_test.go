package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
	"github.com/eyeballvul/repovul/datastore"
	"github.com/eyeballvul/repovul/datastore/sqlite"
)

func TestRepoName(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"https://github.com/example/frob", "github.com_example_frob"},
		{"https://github.com/example/frob/", "github.com_example_frob"},
		{"https://gitlab.example.org/group/sub/project", "gitlab.example.org_group_sub_project"},
	} {
		if got := RepoName(tc.in); got != tc.want {
			t.Errorf("RepoName(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func testStore(t *testing.T, ctx context.Context) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "repovul.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	const repo = "https://github.com/example/frob"
	commit := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	published := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	summary := "frobnicator overflow"
	vulns := []repovul.Vulnerability{{
		ID:        "CVE-2021-0001",
		Published: published,
		Modified:  published.Add(24 * time.Hour),
		Details:   "An overflow in the frobnicator.",
		Summary:   &summary,
		Severity:  []repovul.Severity{{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N"}},
		RepoURL:   repo,
		CWEs:      []string{"CWE-787"},
		Commits:   []string{commit},
	}}
	revs := []repovul.Revision{{
		Commit:    commit,
		RepoURL:   repo,
		Date:      published,
		Languages: map[string]int64{"Go": 100},
		Size:      100,
	}}

	src := testStore(t, ctx)
	if err := src.UpdateRepo(ctx, repo, vulns, revs); err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join(t.TempDir(), "data")
	if err := Export(ctx, src, dataDir); err != nil {
		t.Fatal(err)
	}

	// The tree has the documented shape.
	for _, p := range []string{
		filepath.Join(dataDir, "vulns", "github.com_example_frob", "CVE-2021-0001.json"),
		filepath.Join(dataDir, "revisions", "github.com_example_frob", commit+".json"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Error(err)
		}
	}

	dst := testStore(t, ctx)
	if err := Import(ctx, dst, dataDir); err != nil {
		t.Fatal(err)
	}
	gotV, err := dst.VulnerabilitiesByRepo(ctx, repo, datastore.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(gotV, vulns) {
		t.Error(cmp.Diff(gotV, vulns))
	}
	gotR, err := dst.RevisionsForRepo(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(gotR, revs) {
		t.Error(cmp.Diff(gotR, revs))
	}
}

func TestExportRefusesExistingDir(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	s := testStore(t, ctx)
	dir := t.TempDir()
	if err := Export(ctx, s, dir); err == nil {
		t.Error("expected an error for an existing data directory")
	}
}
