// Package reconcile merges freshly parsed entries into the persisted best
// records under a best-value-wins policy per field. Score and lamp only go
// up, miss count only goes down, and an absent miss count loses to any real
// one. This is the invariant-bearing core of the system.
package reconcile

import "github.com/rhythmkit/scoregraph/internal/chart"

// Result is the outcome of merging one entry against one chart's state.
type Result struct {
	Merged chart.ScoreRecord
	Diff   chart.Diff
	TS     chart.Timestamps
}

// Merge reconciles a parsed entry with the existing record and timestamps
// for its chart. old and oldTS are nil on first play. playedAt stamps every
// field that changes; LastPlayed is stamped unconditionally.
//
// A first-play entry with no play data at all (score 0, lamp 0, miss absent)
// is an unlocked-only declaration: its timestamps are backdated to the epoch
// sentinel and no diff is emitted, so it never shows up as an improvement.
// Other first plays diff score and lamp from zero; the miss diff is emitted
// only when the entry carries a real count, since absent-to-absent is not a
// change.
func Merge(e chart.Entry, old *chart.ScoreRecord, oldTS *chart.Timestamps, playedAt string) Result {
	if old == nil {
		return firstPlay(e, playedAt)
	}

	merged := *old
	ts := chart.Timestamps{}
	if oldTS != nil {
		ts = *oldTS
	}
	ts.LastPlayed = playedAt

	// Only the tabbed format can assert unlock state; every other source
	// keeps the existing value.
	if e.Source == chart.SourceTabbed {
		merged.Unlocked = e.Unlocked
	}

	var diff chart.Diff
	if e.Score > old.Score {
		diff.Score = &chart.FieldDiff{Old: old.Score, New: e.Score}
		merged.Score = e.Score
		ts.ScoreAt = playedAt
	}
	if e.Lamp > old.Lamp {
		diff.Lamp = &chart.FieldDiff{Old: int(old.Lamp), New: int(e.Lamp)}
		merged.Lamp = e.Lamp
		ts.LampAt = playedAt
	}
	if old.Miss.BeatenBy(e.Miss) {
		diff.Miss = &chart.FieldDiff{Old: old.Miss.Sentinel(), New: e.Miss.Count}
		merged.Miss = e.Miss
		ts.MissAt = playedAt
	}

	return Result{Merged: merged, Diff: diff, TS: ts}
}

func firstPlay(e chart.Entry, playedAt string) Result {
	merged := chart.ScoreRecord{
		Score:    e.Score,
		Lamp:     e.Lamp,
		Miss:     e.Miss,
		Unlocked: e.Unlocked,
	}

	if merged.Empty() {
		return Result{
			Merged: merged,
			TS: chart.Timestamps{
				LastPlayed: chart.Epoch,
				ScoreAt:    chart.Epoch,
				LampAt:     chart.Epoch,
				MissAt:     chart.Epoch,
			},
		}
	}

	diff := chart.Diff{
		Score: &chart.FieldDiff{Old: 0, New: e.Score},
		Lamp:  &chart.FieldDiff{Old: 0, New: int(e.Lamp)},
	}
	if e.Miss.Valid {
		diff.Miss = &chart.FieldDiff{Old: chart.MissCountNone, New: e.Miss.Count}
	}
	return Result{
		Merged: merged,
		Diff:   diff,
		TS: chart.Timestamps{
			LastPlayed: playedAt,
			ScoreAt:    playedAt,
			LampAt:     playedAt,
			MissAt:     playedAt,
		},
	}
}
