// Command repovul builds and queries the repovul dataset: it downloads OSV
// advisories, converts them into deduplicated repository revisions, and
// moves the results between the SQLite store and the flat-file JSON tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/eyeballvul/repovul/config"
)

type subcmd func(context.Context, *config.Config, []string) error

var subcmds = map[string]subcmd{
	"download":       Download,
	"convert-one":    ConvertOne,
	"convert-all":    ConvertAll,
	"convert-range":  ConvertRange,
	"get-by-commit":  GetByCommit,
	"get-by-project": GetByProject,
	"get-commits":    GetCommits,
	"get-projects":   GetProjects,
	"json-export":    JSONExport,
	"json-import":    JSONImport,
}

func main() {
	var exit int
	defer func() {
		if exit != 0 {
			os.Exit(exit)
		}
	}()
	ctx, done := context.WithCancel(context.Background())
	defer done()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		<-ch
		done()
	}()

	fs := flag.NewFlagSet("repovul", flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nSubcommands\n\n")
		fmt.Fprintln(out, "download\n\tfetch the configured OSV ecosystems")
		fmt.Fprintln(out, "convert-one <repo_url>\n\tconvert a single repository")
		fmt.Fprintln(out, "convert-all\n\tconvert every repository")
		fmt.Fprintln(out, "convert-range <start> <end>\n\tconvert a slice of the sorted repository list")
		fmt.Fprintln(out, "get-by-commit <commit> [-after d] [-before d]\n\tvulnerabilities covering a commit")
		fmt.Fprintln(out, "get-by-project <repo_url> [-after d] [-before d]\n\tvulnerabilities of a repository")
		fmt.Fprintln(out, "get-commits [-project url] [-after d] [-before d]\n\tcommits with at least one vulnerability")
		fmt.Fprintln(out, "get-projects\n\tknown repository URLs")
		fmt.Fprintln(out, "json-export\n\texport the store to the data directory")
		fmt.Fprintln(out, "json-import\n\timport the data directory into the store")
	}
	cfgPath := fs.String("config", "repovul.toml", "path to the configuration file")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit = 2
		return
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	ctx = log.WithContext(ctx)

	cmd, ok := subcmds[fs.Arg(0)]
	if !ok {
		fs.Usage()
		if fs.Arg(0) != "" {
			fmt.Fprintf(os.Stderr, "\nunknown subcommand %q\n", fs.Arg(0))
		}
		exit = 99
		return
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error().Err(err).Msg("loading configuration")
		exit = 1
		return
	}
	if err := cmd(ctx, cfg, fs.Args()[1:]); err != nil {
		log.Error().Err(err).Msg("command failed")
		exit = 1
	}
}
