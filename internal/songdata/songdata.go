// Package songdata loads the external lookup tables the core depends on:
// the title-to-song-id map, the title substitution table, and the per-chart
// metadata feed (note counts, levels, availability, reference scores).
// The tables are third-party JSON documents with loose schemas, so parsing
// goes through gjson and tolerates unknown fields.
package songdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// ErrFetch wraps any remote table failure. A failed fetch is fatal to every
// operation that needs the table; there is no retry inside the core.
var ErrFetch = errors.New("songdata: remote fetch failed")

// Tables holds the two remotely supplied lookup tables.
type Tables struct {
	// TitleToID maps the escaped canonical title to the song id.
	TitleToID map[string]int
	// Substitutions is the ordered substring substitution table applied by
	// the title normalizer.
	Substitutions [][2]string
}

// Config configures the Loader.
type Config struct {
	TitleMapURL     string
	SubstitutionURL string
	HTTPTimeout     time.Duration // default 30s
	Logger          zerolog.Logger
}

// Loader fetches both tables exactly once per process. The two fetches run
// concurrently; both must succeed before any resolve or merge call executes.
type Loader struct {
	cfg    Config
	client *http.Client

	once   sync.Once
	tables *Tables
	err    error
}

// NewLoader creates a Loader. Nothing is fetched until Tables is called.
func NewLoader(cfg Config) *Loader {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Loader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Tables returns the memoized tables, fetching them on first call. The first
// caller's context governs the fetch; a failure is remembered and returned
// to every subsequent caller.
func (l *Loader) Tables(ctx context.Context) (*Tables, error) {
	l.once.Do(func() {
		start := time.Now()
		l.tables, l.err = l.fetch(ctx)
		if l.err != nil {
			l.cfg.Logger.Error().Err(l.err).Msg("table fetch failed")
			return
		}
		l.cfg.Logger.Info().
			Int("titles", len(l.tables.TitleToID)).
			Int("substitutions", len(l.tables.Substitutions)).
			Dur("dur", time.Since(start)).
			Msg("lookup tables loaded")
	})
	return l.tables, l.err
}

func (l *Loader) fetch(ctx context.Context) (*Tables, error) {
	t := &Tables{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := l.get(ctx, l.cfg.TitleMapURL)
		if err != nil {
			return err
		}
		t.TitleToID, err = parseTitleMap(body)
		return err
	})
	g.Go(func() error {
		body, err := l.get(ctx, l.cfg.SubstitutionURL)
		if err != nil {
			return err
		}
		t.Substitutions, err = parseSubstitutions(body)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return t, nil
}

func (l *Loader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseTitleMap accepts either a flat object {escapedTitle: id} or the same
// object wrapped under a "titles" key.
func parseTitleMap(body []byte) (map[string]int, error) {
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("title map: not a JSON object")
	}
	if wrapped := doc.Get("titles"); wrapped.IsObject() {
		doc = wrapped
	}
	out := make(map[string]int)
	doc.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			out[key.String()] = int(value.Int())
		}
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("title map: no entries")
	}
	return out, nil
}

// parseSubstitutions accepts an array of [from, to] pairs, optionally
// wrapped under a "replaces" key. Malformed entries are skipped.
func parseSubstitutions(body []byte) ([][2]string, error) {
	doc := gjson.ParseBytes(body)
	if wrapped := doc.Get("replaces"); wrapped.IsArray() {
		doc = wrapped
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("substitution table: not a JSON array")
	}
	var out [][2]string
	for _, pair := range doc.Array() {
		arr := pair.Array()
		if len(arr) != 2 {
			continue
		}
		out = append(out, [2]string{arr[0].String(), arr[1].String()})
	}
	return out, nil
}

// ChartInfo is the metadata for one (song, difficulty) slot.
type ChartInfo struct {
	Notes       int
	Level       int
	WorldRecord int
	Average     int
	// Coef is the per-chart BPI exponent; <= 0 means the chart has no tuned
	// exponent and callers use the default.
	Coef float64
}

type songMeta struct {
	notes  [chart.NumDifficulties]int
	levels [chart.NumDifficulties]int
	sp     [chart.NumDifficulties]bool
	dp     [chart.NumDifficulties]bool
	wr     [chart.NumDifficulties]int
	avg    [chart.NumDifficulties]int
	coef   [chart.NumDifficulties]float64
}

// Meta is the chart metadata feed, keyed by song id with per-difficulty
// values indexed by the difficulty ordinal.
type Meta struct {
	songs map[int]*songMeta
}

// Len returns the number of songs in the feed.
func (m *Meta) Len() int { return len(m.songs) }

// Chart returns the metadata for one chart, or false if the feed has no
// entry for it.
func (m *Meta) Chart(songID int, d chart.Difficulty) (ChartInfo, bool) {
	s, ok := m.songs[songID]
	if !ok {
		return ChartInfo{}, false
	}
	return ChartInfo{
		Notes:       s.notes[d],
		Level:       s.levels[d],
		WorldRecord: s.wr[d],
		Average:     s.avg[d],
		Coef:        s.coef[d],
	}, true
}

// Available reports whether the chart exists in the given mode.
func (m *Meta) Available(songID int, mode chart.Mode, d chart.Difficulty) bool {
	s, ok := m.songs[songID]
	if !ok {
		return false
	}
	if mode == chart.DP {
		return s.dp[d]
	}
	return s.sp[d]
}

// LoadMetaFile reads a metadata feed from a local file. Used by the import
// CLI and tests; the served process fetches over HTTP.
func LoadMetaFile(path string) (*Meta, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseMeta(body)
}

// FetchMeta fetches the metadata feed from a URL.
func FetchMeta(ctx context.Context, client *http.Client, url string) (*Meta, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrFetch, url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return parseMeta(body)
}

// parseMeta reads the feed shape:
//
//	{"songs": [{"id": 1001, "notes": [...], "levels": [...],
//	            "sp": [...], "dp": [...], "wr": [...], "avg": [...],
//	            "coef": [...]}, ...]}
//
// Arrays shorter than 5 leave the remaining ordinals at zero values.
func parseMeta(body []byte) (*Meta, error) {
	doc := gjson.ParseBytes(body).Get("songs")
	if !doc.IsArray() {
		return nil, fmt.Errorf("meta feed: missing songs array")
	}
	m := &Meta{songs: make(map[int]*songMeta)}
	for _, song := range doc.Array() {
		id := int(song.Get("id").Int())
		if id == 0 {
			continue
		}
		s := &songMeta{}
		fillInts(song.Get("notes"), s.notes[:])
		fillInts(song.Get("levels"), s.levels[:])
		fillBools(song.Get("sp"), s.sp[:])
		fillBools(song.Get("dp"), s.dp[:])
		fillInts(song.Get("wr"), s.wr[:])
		fillInts(song.Get("avg"), s.avg[:])
		fillFloats(song.Get("coef"), s.coef[:])
		m.songs[id] = s
	}
	return m, nil
}

func fillInts(r gjson.Result, dst []int) {
	for i, v := range r.Array() {
		if i >= len(dst) {
			break
		}
		dst[i] = int(v.Int())
	}
}

func fillBools(r gjson.Result, dst []bool) {
	for i, v := range r.Array() {
		if i >= len(dst) {
			break
		}
		dst[i] = v.Bool()
	}
}

func fillFloats(r gjson.Result, dst []float64) {
	for i, v := range r.Array() {
		if i >= len(dst) {
			break
		}
		dst[i] = v.Float()
	}
}
