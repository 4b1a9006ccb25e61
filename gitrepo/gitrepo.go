// Package gitrepo is the gateway to upstream repositories: it clones
// working copies, resolves version strings to commits, and drives the
// language classifier over checked-out trees.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/quay/zlog"

	"github.com/eyeballvul/repovul"
)

// LinguistBin is the language classifier executable. Overridable for
// environments that install it under a different name.
var LinguistBin = `github-linguist`

// Repo is a capability over an initially-unknown working copy of an
// upstream repository.
//
// The clone is deferred: nothing touches the network until the first
// operation that needs the working copy.
type Repo struct {
	URL     string
	workdir string
	dir     string
}

// New returns a Repo that will clone into a fresh directory under workdir
// on first use.
func New(repoURL, workdir string) *Repo {
	return &Repo{URL: repoURL, workdir: workdir}
}

// Cloned reports whether the working copy has been materialized.
func (r *Repo) Cloned() bool { return r.dir != "" }

// Workdir creates a scoped temporary directory under root for one repo's
// conversion. The returned cleanup removes it and everything under it; call
// it on every exit path.
func Workdir(root string) (string, func(), error) {
	dir, err := os.MkdirTemp(root, "repovul.*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// clone materializes the working copy.
func (r *Repo) clone(ctx context.Context) error {
	if r.dir != "" {
		return nil
	}
	ctx = zlog.ContextWithValues(ctx, "component", "gitrepo/Repo.clone")
	dir, err := os.MkdirTemp(r.workdir, "clone.*")
	if err != nil {
		return err
	}
	zlog.Info(ctx).
		Str("repo", r.URL).
		Str("dir", dir).
		Msg("cloning")
	_, stderr, err := run(ctx, "", `git`, `clone`, `--quiet`, r.URL, dir)
	if err != nil {
		os.RemoveAll(dir)
		kind := repovul.ErrGit
		if notFound(stderr) {
			kind = repovul.ErrRepoNotFound
		}
		return &repovul.Error{
			Op:      "gitrepo.clone",
			Kind:    kind,
			Message: r.URL,
			Inner:   err,
		}
	}
	r.dir = dir
	return nil
}

// notFound matches the stderr git emits when the remote reports the
// repository unavailable.
func notFound(stderr string) bool {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, `repository not found`),
		strings.Contains(s, `repository unavailable`),
		strings.Contains(s, `does not exist`),
		strings.Contains(s, `could not read from remote repository`):
		return true
	}
	return false
}

// ResolveVersion looks version up as a git reference. It returns the full
// 40-hex commit and the commit's author timestamp, or (nil, nil) when the
// reference is unknown. Unresolved versions are not errors.
func (r *Repo) ResolveVersion(ctx context.Context, version string) (*repovul.VersionInfo, error) {
	if err := r.clone(ctx); err != nil {
		return nil, err
	}
	stdout, stderr, err := run(ctx, r.dir, `git`, `rev-parse`, `--verify`, `--quiet`, version+`^{commit}`)
	if err != nil {
		var exit *exec.ExitError
		// With --quiet, an unknown ref exits 1 and says nothing.
		if errors.As(err, &exit) && strings.TrimSpace(stderr) == "" {
			return nil, nil
		}
		return nil, &repovul.Error{Op: "gitrepo.ResolveVersion", Kind: repovul.ErrGit, Message: version, Inner: err}
	}
	commit := strings.TrimSpace(stdout)
	stdout, _, err = run(ctx, r.dir, `git`, `log`, `-1`, `--format=%at`, commit)
	if err != nil {
		return nil, &repovul.Error{Op: "gitrepo.ResolveVersion", Kind: repovul.ErrGit, Message: commit, Inner: err}
	}
	date, err := strconv.ParseInt(strings.TrimSpace(stdout), 10, 64)
	if err != nil {
		return nil, &repovul.Error{Op: "gitrepo.ResolveVersion", Kind: repovul.ErrGit, Message: commit, Inner: err}
	}
	return &repovul.VersionInfo{Commit: commit, Date: date}, nil
}

// Checkout leaves the working tree at the named commit.
func (r *Repo) Checkout(ctx context.Context, commit string) error {
	if err := r.clone(ctx); err != nil {
		return err
	}
	if _, _, err := run(ctx, r.dir, `git`, `checkout`, `--quiet`, `--force`, commit); err != nil {
		return &repovul.Error{Op: "gitrepo.Checkout", Kind: repovul.ErrGit, Message: commit, Inner: err}
	}
	return nil
}

// MeasureAt checks out the named commit and runs the language classifier
// over the tree, returning per-language byte counts and their sum.
func (r *Repo) MeasureAt(ctx context.Context, commit string) (map[string]int64, int64, error) {
	if err := r.Checkout(ctx, commit); err != nil {
		return nil, 0, err
	}
	stdout, _, err := run(ctx, r.dir, LinguistBin, `--json`)
	if err != nil {
		return nil, 0, &repovul.Error{Op: "gitrepo.MeasureAt", Kind: repovul.ErrLinguist, Message: commit, Inner: err}
	}
	languages, size, err := parseLinguist([]byte(stdout))
	if err != nil {
		return nil, 0, &repovul.Error{Op: "gitrepo.MeasureAt", Kind: repovul.ErrLinguist, Message: commit, Inner: err}
	}
	return languages, size, nil
}

// run executes a command in dir, returning stdout and stderr separately.
func run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
