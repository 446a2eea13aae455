package metrics_test

import (
	"errors"
	"math"
	"testing"

	"github.com/rhythmkit/scoregraph/internal/metrics"
)

func TestBPIAtAverageIsZero(t *testing.T) {
	// personal == average, and the world record equals the average too:
	// the s==k branch must short-circuit before any division by ln(z/k).
	got, err := metrics.BPI(3000, 3000, 2000, 3000, 0)
	if err != nil {
		t.Fatalf("BPI: %v", err)
	}
	if got != 0 {
		t.Errorf("got %v, want 0", got)
	}

	// Same with a distinct world record.
	got, err = metrics.BPI(3600, 3000, 2000, 3000, 0)
	if err != nil {
		t.Fatalf("BPI: %v", err)
	}
	if got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestBPIExactMaxBranch(t *testing.T) {
	// personal == notes*2 hits the special-cased pgf branch; the result
	// must be finite and positive.
	got, err := metrics.BPI(3600, 3000, 2000, 4000, 0)
	if err != nil {
		t.Fatalf("BPI: %v", err)
	}
	if math.IsNaN(got) || math.IsInf(got, 0) || got <= 0 {
		t.Errorf("got %v, want a finite positive value", got)
	}
}

func TestBPIAboveAndBelowAverage(t *testing.T) {
	above, err := metrics.BPI(3600, 3000, 2000, 3300, 0)
	if err != nil {
		t.Fatalf("BPI above: %v", err)
	}
	if above <= 0 {
		t.Errorf("above-average BPI = %v, want > 0", above)
	}

	below, err := metrics.BPI(3600, 3000, 2000, 2700, 0)
	if err != nil {
		t.Fatalf("BPI below: %v", err)
	}
	if below >= 0 {
		t.Errorf("below-average BPI = %v, want < 0", below)
	}
}

func TestBPIFloor(t *testing.T) {
	got, err := metrics.BPI(3600, 3000, 2000, 100, 0)
	if err != nil {
		t.Fatalf("BPI: %v", err)
	}
	if got != -15 {
		t.Errorf("got %v, want the -15 floor", got)
	}
}

func TestBPIUnavailable(t *testing.T) {
	cases := []struct {
		name                 string
		wr, avg, notes, self int
	}{
		{"zero notes", 3600, 3000, 0, 1000},
		{"zero world record", 0, 3000, 2000, 1000},
		{"zero average", 3600, 0, 2000, 1000},
		{"personal above max", 3600, 3000, 2000, 4001},
		{"wr equals avg but personal differs", 3000, 3000, 2000, 3500},
	}
	for _, c := range cases {
		if _, err := metrics.BPI(c.wr, c.avg, c.notes, c.self, 0); !errors.Is(err, metrics.ErrUnavailable) {
			t.Errorf("%s: err = %v, want ErrUnavailable", c.name, err)
		}
	}
}

func TestBPIRoundsToTwoDecimals(t *testing.T) {
	got, err := metrics.BPI(3600, 3000, 2000, 3300, 0)
	if err != nil {
		t.Fatalf("BPI: %v", err)
	}
	if math.Abs(got*100-math.Round(got*100)) > 1e-9 {
		t.Errorf("got %v, want two-decimal rounding", got)
	}
}
