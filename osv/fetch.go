package osv

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/quay/zlog"
)

// DefaultURL is the bucket provided by the OSV project.
const DefaultURL = `https://osv-vulnerabilities.storage.googleapis.com/`

// FetchTimeout bounds each per-ecosystem download.
const FetchTimeout = 30 * time.Second

// Fetch downloads <root>/<ecosystem>/all.zip for every requested ecosystem
// and unpacks each archive into <dest>/<ecosystem>/.
//
// A nil client uses a default with [FetchTimeout] applied.
func Fetch(ctx context.Context, c *http.Client, root string, ecosystems []string, dest string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "osv/Fetch")
	if c == nil {
		c = &http.Client{Timeout: FetchTimeout}
	}
	for _, eco := range ecosystems {
		if err := fetchOne(ctx, c, root, eco, filepath.Join(dest, eco)); err != nil {
			return fmt.Errorf("osv: fetching %q: %w", eco, err)
		}
	}
	return nil
}

func fetchOne(ctx context.Context, c *http.Client, root, eco, dir string) error {
	u := root
	if u == "" {
		u = DefaultURL
	}
	u += path.Join(eco, `all.zip`)
	zlog.Info(ctx).
		Str("ecosystem", eco).
		Str("url", u).
		Msg("downloading")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response from %q: %v", u, res.Status)
	}

	// Spool to disk; zip needs random access.
	spool, err := os.CreateTemp("", "osv.fetch.*.zip")
	if err != nil {
		return err
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()
	sz, err := io.Copy(spool, res.Body)
	if err != nil {
		return err
	}
	z, err := zip.NewReader(spool, sz)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var ct int
	for _, f := range z.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Archive members are flat "<id>.json" names; anything trying to
		// escape the target directory is hostile.
		name := filepath.Join(dir, filepath.Base(f.Name))
		if err := extract(f, name); err != nil {
			return err
		}
		ct++
	}
	zlog.Info(ctx).
		Str("ecosystem", eco).
		Int("files", ct).
		Msg("extracted")
	return nil
}

func extract(f *zip.File, name string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(name)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Close()
}
