// Package datastore defines the record store contract the conversion
// pipeline and the CLI query surface share.
package datastore

import (
	"context"
	"time"

	"github.com/eyeballvul/repovul"
)

// Window is a half-open [After, Before) filter on an advisory's published
// timestamp. Nil bounds are unconstrained.
type Window struct {
	After  *time.Time
	Before *time.Time
}

// Store is the persistent home of vulnerability and revision records.
type Store interface {
	// UpdateRepo atomically replaces every record for repoURL with the
	// provided ones.
	UpdateRepo(ctx context.Context, repoURL string, vulns []repovul.Vulnerability, revs []repovul.Revision) error
	// RevisionsForRepo returns the revisions recorded for repoURL.
	RevisionsForRepo(ctx context.Context, repoURL string) ([]repovul.Revision, error)
	// VulnerabilitiesByCommit returns the vulnerabilities whose commits
	// list contains commit (strict membership, not substring).
	VulnerabilitiesByCommit(ctx context.Context, commit string, w Window) ([]repovul.Vulnerability, error)
	// VulnerabilitiesByRepo returns the vulnerabilities for repoURL.
	VulnerabilitiesByRepo(ctx context.Context, repoURL string, w Window) ([]repovul.Vulnerability, error)
	// Commits returns every commit covered by at least one vulnerability
	// in the window, optionally restricted to one repo. repoURL == ""
	// means all repos.
	Commits(ctx context.Context, repoURL string, w Window) ([]string, error)
	// Repos returns the distinct repository URLs, sorted.
	Repos(ctx context.Context) ([]string, error)
	// Vulnerabilities returns every vulnerability record.
	Vulnerabilities(ctx context.Context) ([]repovul.Vulnerability, error)
	// Revisions returns every revision record.
	Revisions(ctx context.Context) ([]repovul.Revision, error)

	Close() error
}
