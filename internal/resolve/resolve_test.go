package resolve_test

import (
	"errors"
	"testing"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/resolve"
	"github.com/rhythmkit/scoregraph/internal/songdata"
)

func testTables() *songdata.Tables {
	return &songdata.Tables{
		TitleToID: map[string]int{
			"GAMBOL":     10,
			`\u00e6ther`: 11,
			"quell":      12,
		},
	}
}

func testRemap() map[int]resolve.Remap {
	return map[int]resolve.Remap{
		10: {AltID: 9010, Changed: map[string]bool{"SPA": true}},
	}
}

func TestResolve(t *testing.T) {
	r := resolve.New(testTables(), testRemap())

	id, err := r.Resolve("GAMBOL", chart.SP, chart.Hyper, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != 10 {
		t.Errorf("id = %d, want 10", id)
	}

	// Title normalization feeds the lookup: the escaped key matches.
	id, err = r.Resolve("æther", chart.SP, chart.Another, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != 11 {
		t.Errorf("id = %d, want 11", id)
	}
}

func TestResolveUnresolved(t *testing.T) {
	r := resolve.New(testTables(), nil)
	_, err := r.Resolve("NOT A SONG", chart.SP, chart.Another, false)
	if !errors.Is(err, resolve.ErrUnresolved) {
		t.Fatalf("err = %v, want ErrUnresolved", err)
	}
}

func TestResolveAlternateRemap(t *testing.T) {
	r := resolve.New(testTables(), testRemap())

	// Changed slot from an alternate-release source redirects.
	id, err := r.Resolve("GAMBOL", chart.SP, chart.Another, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != 9010 {
		t.Errorf("id = %d, want the alternate 9010", id)
	}

	// Same chart without the alternate flag keeps the canonical id.
	id, _ = r.Resolve("GAMBOL", chart.SP, chart.Another, false)
	if id != 10 {
		t.Errorf("id = %d, want 10", id)
	}

	// A slot not listed as changed keeps the canonical id even when
	// alternate.
	id, _ = r.Resolve("GAMBOL", chart.SP, chart.Hyper, true)
	if id != 10 {
		t.Errorf("id = %d, want 10", id)
	}

	// Songs without a remap entry are unaffected.
	id, _ = r.Resolve("quell", chart.SP, chart.Another, true)
	if id != 12 {
		t.Errorf("id = %d, want 12", id)
	}
}
