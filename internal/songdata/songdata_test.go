package songdata_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/songdata"
)

const metaFeed = `{"songs": [
	{"id": 1001,
	 "notes": [0, 500, 900, 1300, 0],
	 "levels": [0, 5, 8, 11, 0],
	 "sp": [false, true, true, true, false],
	 "dp": [false, false, true, true, false],
	 "wr": [0, 0, 0, 2500, 0],
	 "avg": [0, 0, 0, 2100, 0],
	 "coef": [0, 0, 0, 1.3, 0]}
]}`

func TestLoaderTables(t *testing.T) {
	titles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"titles": {"GAMBOL": 1001, "quell": 1002}}`))
	}))
	defer titles.Close()
	subst := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"replaces": [["～", "〜"], ["bad entry"], ["Ｘ", "X"]]}`))
	}))
	defer subst.Close()

	l := songdata.NewLoader(songdata.Config{
		TitleMapURL:     titles.URL,
		SubstitutionURL: subst.URL,
		Logger:          zerolog.Nop(),
	})
	tables, err := l.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if tables.TitleToID["GAMBOL"] != 1001 || tables.TitleToID["quell"] != 1002 {
		t.Errorf("title map = %v", tables.TitleToID)
	}
	// The malformed pair is skipped, not fatal.
	if len(tables.Substitutions) != 2 {
		t.Errorf("substitutions = %v", tables.Substitutions)
	}

	// Repeated calls return the memoized result.
	again, err := l.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables (second call): %v", err)
	}
	if again != tables {
		t.Error("second call returned a different table instance")
	}
}

func TestLoaderFetchFailure(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer bad.Close()

	l := songdata.NewLoader(songdata.Config{
		TitleMapURL:     bad.URL,
		SubstitutionURL: bad.URL,
		Logger:          zerolog.Nop(),
	})
	if _, err := l.Tables(context.Background()); !errors.Is(err, songdata.ErrFetch) {
		t.Errorf("err = %v, want ErrFetch", err)
	}
	// The failure is memoized too.
	if _, err := l.Tables(context.Background()); !errors.Is(err, songdata.ErrFetch) {
		t.Errorf("second call err = %v, want ErrFetch", err)
	}
}

func TestLoadMetaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	if err := os.WriteFile(path, []byte(metaFeed), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := songdata.LoadMetaFile(path)
	if err != nil {
		t.Fatalf("LoadMetaFile: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}

	info, ok := m.Chart(1001, chart.Another)
	if !ok {
		t.Fatal("Chart(1001, A) not found")
	}
	want := songdata.ChartInfo{Notes: 1300, Level: 11, WorldRecord: 2500, Average: 2100, Coef: 1.3}
	if info != want {
		t.Errorf("chart info = %+v, want %+v", info, want)
	}

	if !m.Available(1001, chart.SP, chart.Normal) {
		t.Error("SP Normal should be available")
	}
	if m.Available(1001, chart.DP, chart.Normal) {
		t.Error("DP Normal should not be available")
	}
	if _, ok := m.Chart(9999, chart.Another); ok {
		t.Error("unknown song id should not resolve")
	}
}

func TestFetchMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metaFeed))
	}))
	defer srv.Close()

	m, err := songdata.FetchMeta(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FetchMeta: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer down.Close()
	if _, err := songdata.FetchMeta(context.Background(), down.Client(), down.URL); !errors.Is(err, songdata.ErrFetch) {
		t.Errorf("err = %v, want ErrFetch", err)
	}
}
