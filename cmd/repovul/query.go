package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eyeballvul/repovul/config"
	"github.com/eyeballvul/repovul/datastore"
	"github.com/eyeballvul/repovul/datastore/sqlite"
)

// windowFlags adds the shared -after/-before pair to a FlagSet. The window
// is half-open: after <= published < before.
func windowFlags(fs *flag.FlagSet) (after, before *string) {
	after = fs.String("after", "", "only vulnerabilities published at or after this date (inclusive)")
	before = fs.String("before", "", "only vulnerabilities published before this date (exclusive)")
	return after, before
}

func parseWindow(after, before string) (w datastore.Window, err error) {
	parse := func(s string) (*time.Time, error) {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("unparseable date %q; want ISO 8601", s)
	}
	if after != "" {
		if w.After, err = parse(after); err != nil {
			return w, err
		}
	}
	if before != "" {
		if w.Before, err = parse(before); err != nil {
			return w, err
		}
	}
	return w, nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = os.Stdout.Write(b)
	return err
}

// GetByCommit prints the vulnerabilities whose commits list contains the
// given 40-hex commit.
func GetByCommit(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("get-by-commit", flag.ExitOnError)
	after, before := windowFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: get-by-commit <commit>")
	}
	commit := fs.Arg(0)
	if len(commit) != 40 {
		return fmt.Errorf("the commit hash must be 40 characters long")
	}
	w, err := parseWindow(*after, *before)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	vulns, err := store.VulnerabilitiesByCommit(ctx, commit, w)
	if err != nil {
		return err
	}
	return printJSON(vulns)
}

// GetByProject prints the vulnerabilities of one repository.
func GetByProject(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("get-by-project", flag.ExitOnError)
	after, before := windowFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: get-by-project <repo_url>")
	}
	w, err := parseWindow(*after, *before)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	vulns, err := store.VulnerabilitiesByRepo(ctx, fs.Arg(0), w)
	if err != nil {
		return err
	}
	return printJSON(vulns)
}

// GetCommits prints every commit with at least one vulnerability in the
// window, optionally restricted to one repository.
func GetCommits(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("get-commits", flag.ExitOnError)
	after, before := windowFlags(fs)
	project := fs.String("project", "", "restrict to this repository URL")
	fs.Parse(args)
	if fs.NArg() != 0 {
		return fmt.Errorf("usage: get-commits [-project url] [-after d] [-before d]")
	}
	w, err := parseWindow(*after, *before)
	if err != nil {
		return err
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	commits, err := store.Commits(ctx, *project, w)
	if err != nil {
		return err
	}
	return printJSON(commits)
}

// GetProjects prints the distinct repository URLs in the store.
func GetProjects(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: get-projects")
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	repos, err := store.Repos(ctx)
	if err != nil {
		return err
	}
	return printJSON(repos)
}
