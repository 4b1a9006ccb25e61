package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/eyeballvul/repovul/config"
	"github.com/eyeballvul/repovul/convert"
	"github.com/eyeballvul/repovul/osv"
)

// Download fetches all.zip for every configured ecosystem and unpacks it
// into the OSV tree.
func Download(ctx context.Context, cfg *config.Config, args []string) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	return osv.Fetch(ctx, nil, osv.DefaultURL, cfg.Ecosystems, cfg.OSVDir())
}

// ConvertOne converts a single repository.
func ConvertOne(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: convert-one <repo_url>")
	}
	c, err := convert.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	return c.ConvertOne(ctx, args[0])
}

// ConvertAll converts every known repository.
func ConvertAll(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: convert-all")
	}
	c, err := convert.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	return c.ConvertAll(ctx)
}

// ConvertRange converts a slice of the sorted repository list.
func ConvertRange(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: convert-range <start> <end>")
	}
	start, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad start %q: %w", args[0], err)
	}
	end, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad end %q: %w", args[1], err)
	}
	c, err := convert.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	return c.ConvertRange(ctx, start, end)
}
