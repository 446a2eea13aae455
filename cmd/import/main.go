package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/logx"
	"github.com/rhythmkit/scoregraph/internal/parse"
	"github.com/rhythmkit/scoregraph/internal/reconcile"
	"github.com/rhythmkit/scoregraph/internal/resolve"
	"github.com/rhythmkit/scoregraph/internal/songdata"
	"github.com/rhythmkit/scoregraph/internal/store"
)

func main() {
	defaultTitleMap := "https://data.scoregraph.dev/titles.json"
	if env := os.Getenv("TITLE_MAP_URL"); env != "" {
		defaultTitleMap = env
	}
	defaultSubst := "https://data.scoregraph.dev/substitutions.json"
	if env := os.Getenv("SUBSTITUTION_URL"); env != "" {
		defaultSubst = env
	}

	var (
		inputPath = flag.String("input", "", "export file to import")
		formatStr = flag.String("format", "", "input format: official, counter, tabbed (empty = sniff)")
		modeStr   = flag.String("mode", "SP", "play mode for official exports (SP or DP)")
		alternate = flag.Bool("alternate", false, "input references the other release's chart ids")

		dbPath = flag.String("db", "./data/scores.db", "sqlite database path")

		titleMapURL = flag.String("title-map", defaultTitleMap, "title lookup table URL")
		substURL    = flag.String("substitutions", defaultSubst, "substitution table URL")
	)
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: import -input <export file> [-format official|counter|tabbed]")
		os.Exit(2)
	}

	logger := logx.NewLogger("import")
	ctx := context.Background()

	body, err := os.ReadFile(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *inputPath).Msg("read input")
	}
	text := string(body)

	var format parse.Format
	if *formatStr != "" {
		format, err = parse.ParseFormat(*formatStr)
	} else {
		format, err = parse.Sniff(text)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("detect format")
	}

	mode, err := chart.ParseMode(*modeStr)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse mode")
	}

	loader := songdata.NewLoader(songdata.Config{
		TitleMapURL:     *titleMapURL,
		SubstitutionURL: *substURL,
		Logger:          logger.With().Str("component", "songdata").Logger(),
	})
	tables, err := loader.Tables(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load lookup tables")
	}

	st, err := store.OpenSQLite(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *dbPath).Msg("open store")
	}
	defer st.Close()

	importer := reconcile.NewImporter(st, resolve.New(tables, nil), reconcile.Config{
		Logger: logger,
	})

	start := time.Now()
	rep, err := importer.ImportText(ctx, format, mode, text, *alternate)
	if err != nil {
		logger.Fatal().Err(err).Msg("import failed")
	}

	fmt.Printf("parsed %d, merged %d, improved %d in %s\n",
		rep.Parsed, rep.Merged, rep.Improved, time.Since(start).Round(time.Millisecond))
	if len(rep.Unresolved) > 0 {
		fmt.Printf("%d titles could not be resolved:\n", len(rep.Unresolved))
		for _, t := range rep.Unresolved {
			fmt.Printf("  %s\n", t)
		}
	}
}
