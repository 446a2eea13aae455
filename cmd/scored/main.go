package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhythmkit/scoregraph/internal/httpapi"
	"github.com/rhythmkit/scoregraph/internal/logx"
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
		addr = flag.String("addr", ":8017", "listen address")

		dbPath = flag.String("db", "./data/scores.db", "sqlite database path (empty = in-memory)")

		titleMapURL = flag.String("title-map", defaultTitleMap, "title lookup table URL")
		substURL    = flag.String("substitutions", defaultSubst, "substitution table URL")
		metaURL     = flag.String("meta", "", "chart metadata feed URL (empty = disabled)")
		metaFile    = flag.String("meta-file", "", "chart metadata feed file (overrides -meta)")

		fetchTimeout = flag.Duration("fetch-timeout", 30*time.Second, "remote table fetch timeout")
	)
	flag.Parse()

	logger := logx.NewLogger("scored")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Both lookup tables must load before any resolve or merge runs.
	loader := songdata.NewLoader(songdata.Config{
		TitleMapURL:     *titleMapURL,
		SubstitutionURL: *substURL,
		HTTPTimeout:     *fetchTimeout,
		Logger:          logger.With().Str("component", "songdata").Logger(),
	})
	tables, err := loader.Tables(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("load lookup tables")
	}
	resolver := resolve.New(tables, nil)

	var st store.Store
	if *dbPath == "" {
		st = store.NewMemStore()
		logger.Info().Msg("using in-memory store")
	} else {
		s, err := store.OpenSQLite(*dbPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *dbPath).Msg("open store")
		}
		st = s
		logger.Info().Str("path", *dbPath).Msg("opened sqlite store")
	}
	defer st.Close()

	var meta *songdata.Meta
	switch {
	case *metaFile != "":
		meta, err = songdata.LoadMetaFile(*metaFile)
		if err != nil {
			logger.Warn().Err(err).Str("path", *metaFile).Msg("failed to load metadata feed")
			meta = nil
		}
	case *metaURL != "":
		meta, err = songdata.FetchMeta(ctx, nil, *metaURL)
		if err != nil {
			logger.Warn().Err(err).Str("url", *metaURL).Msg("failed to fetch metadata feed")
			meta = nil
		}
	}
	if meta != nil {
		logger.Info().Int("songs", meta.Len()).Msg("metadata feed loaded")
	}

	importer := reconcile.NewImporter(st, resolver, reconcile.Config{
		Logger: logger.With().Str("component", "importer").Logger(),
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, importer, st, meta),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}
