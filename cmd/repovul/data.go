package main

import (
	"context"
	"fmt"
	"os"

	"github.com/eyeballvul/repovul/config"
	"github.com/eyeballvul/repovul/datastore/sqlite"
	"github.com/eyeballvul/repovul/export"
)

// JSONExport writes the store contents into the data directory. The
// directory must not already exist.
func JSONExport(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: json-export")
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	return export.Export(ctx, store, cfg.DataDir())
}

// JSONImport loads the data directory into a fresh store. It refuses to
// run against an existing database file.
func JSONImport(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: json-import")
	}
	if _, err := os.Stat(cfg.DBFile()); err == nil {
		return fmt.Errorf("database %q already exists; remove or back it up before importing", cfg.DBFile())
	} else if !os.IsNotExist(err) {
		return err
	}
	store, err := sqlite.Open(ctx, cfg.DBFile())
	if err != nil {
		return err
	}
	defer store.Close()
	return export.Import(ctx, store, cfg.DataDir())
}
