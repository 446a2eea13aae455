package reconcile_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/parse"
	"github.com/rhythmkit/scoregraph/internal/reconcile"
	"github.com/rhythmkit/scoregraph/internal/resolve"
	"github.com/rhythmkit/scoregraph/internal/songdata"
	"github.com/rhythmkit/scoregraph/internal/store"
)

func newTestImporter(st store.Store) *reconcile.Importer {
	tables := &songdata.Tables{TitleToID: map[string]int{
		"GAMBOL": 10,
		"quell":  12,
	}}
	remap := map[int]resolve.Remap{
		10: {AltID: 9010, Changed: map[string]bool{"SPA": true}},
	}
	return reconcile.NewImporter(st, resolve.New(tables, remap), reconcile.Config{
		Logger: zerolog.Nop(),
		Now:    func() string { return at },
	})
}

func TestImportTextUnresolvedIsolation(t *testing.T) {
	st := store.NewMemStore()
	im := newTestImporter(st)

	// Three parsed entries, one with an unknown title: exactly two merges
	// and a failure list of one.
	text := strings.Join([]string{
		"title,difficulty,clearlamp,score,misscount",
		"GAMBOL,SPA,HC,1801,2",
		"NOT A SONG,SPH,C,700,",
		"quell,SPN,EC,900,4",
	}, "\n")

	rep, err := im.ImportText(context.Background(), parse.Counter, chart.SP, text, false)
	if err != nil {
		t.Fatalf("ImportText: %v", err)
	}
	if rep.Parsed != 3 || rep.Merged != 2 {
		t.Errorf("report = %+v, want parsed 3 merged 2", rep)
	}
	if len(rep.Unresolved) != 1 || rep.Unresolved[0] != "NOT A SONG" {
		t.Errorf("unresolved = %v", rep.Unresolved)
	}

	rec, ts, err := st.Get(context.Background(), chart.Key{Mode: chart.SP, SongID: 10, Diff: chart.Another})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Score != 1801 || rec.Lamp != chart.LampHard {
		t.Errorf("record = %+v", rec)
	}
	if ts.LastPlayed != at {
		t.Errorf("LastPlayed = %q, want injected clock %q", ts.LastPlayed, at)
	}
}

func TestImportTextAlternateRemap(t *testing.T) {
	st := store.NewMemStore()
	im := newTestImporter(st)

	text := "title,difficulty,clearlamp,score,misscount\nGAMBOL,SPA,C,1000,3\n"

	if _, err := im.ImportText(context.Background(), parse.Counter, chart.SP, text, true); err != nil {
		t.Fatalf("ImportText: %v", err)
	}

	// The record must land under the alternate id, not the canonical one.
	if _, _, err := st.Get(context.Background(), chart.Key{Mode: chart.SP, SongID: 9010, Diff: chart.Another}); err != nil {
		t.Fatalf("alternate key missing: %v", err)
	}
	if _, _, err := st.Get(context.Background(), chart.Key{Mode: chart.SP, SongID: 10, Diff: chart.Another}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("canonical key should be empty, err = %v", err)
	}
}

func TestImportTextAccumulatesDiffs(t *testing.T) {
	st := store.NewMemStore()
	im := newTestImporter(st)
	ctx := context.Background()
	key := chart.Key{Mode: chart.SP, SongID: 10, Diff: chart.Another}

	head := "title,difficulty,clearlamp,score,misscount\n"
	if _, err := im.ImportText(ctx, parse.Counter, chart.SP, head+"GAMBOL,SPA,EC,1000,9\n", false); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := im.ImportText(ctx, parse.Counter, chart.SP, head+"GAMBOL,SPA,HC,1300,9\n", false); err != nil {
		t.Fatalf("second import: %v", err)
	}

	d, err := st.GetDiff(ctx, key)
	if err != nil {
		t.Fatalf("GetDiff: %v", err)
	}
	// The accumulated diff spans both imports: first-play old values to the
	// latest bests.
	if d.Score == nil || d.Score.Old != 0 || d.Score.New != 1300 {
		t.Errorf("score diff = %+v, want {0 1300}", d.Score)
	}
	if d.Lamp == nil || d.Lamp.Old != 0 || d.Lamp.New != int(chart.LampHard) {
		t.Errorf("lamp diff = %+v, want {0 5}", d.Lamp)
	}
}

func TestForceWriteClearsDiff(t *testing.T) {
	st := store.NewMemStore()
	im := newTestImporter(st)
	ctx := context.Background()
	key := chart.Key{Mode: chart.SP, SongID: 10, Diff: chart.Another}

	head := "title,difficulty,clearlamp,score,misscount\n"
	if _, err := im.ImportText(ctx, parse.Counter, chart.SP, head+"GAMBOL,SPA,HC,1500,2\n", false); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := st.GetDiff(ctx, key); err != nil {
		t.Fatalf("expected a pending diff: %v", err)
	}

	// Overwrite to worse values: comparisons bypassed, pending diff
	// dropped.
	worse := chart.ScoreRecord{Score: 10, Lamp: chart.LampFailed, Miss: chart.Miss(99)}
	if err := im.ForceWrite(ctx, key, worse, at); err != nil {
		t.Fatalf("ForceWrite: %v", err)
	}

	rec, _, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != worse {
		t.Errorf("record = %+v, want forced %+v", rec, worse)
	}
	if _, err := st.GetDiff(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("pending diff should be cleared, err = %v", err)
	}
}
