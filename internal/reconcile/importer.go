package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/parse"
	"github.com/rhythmkit/scoregraph/internal/resolve"
	"github.com/rhythmkit/scoregraph/internal/store"
)

// Config configures the Importer.
type Config struct {
	Logger zerolog.Logger
	// Now supplies the played-at timestamp for entries whose format carries
	// no play date. Defaults to time.Now in UTC RFC3339.
	Now func() string
}

// Importer runs the parse -> resolve -> merge pipeline against a store.
// Merge-then-persist sequences run under a single mutex: the stores assume
// one writer, and a merge reads current state and writes new state as two
// steps that must not interleave on the same key.
type Importer struct {
	st  store.Store
	res *resolve.Resolver
	cfg Config

	mu sync.Mutex
}

// NewImporter creates an Importer.
func NewImporter(st store.Store, res *resolve.Resolver, cfg Config) *Importer {
	if cfg.Now == nil {
		cfg.Now = func() string { return time.Now().UTC().Format(time.RFC3339) }
	}
	return &Importer{st: st, res: res, cfg: cfg}
}

// Report summarizes one import batch. Unresolved lists the raw titles that
// failed identity resolution; those entries were skipped whole, never
// partially merged.
type Report struct {
	Parsed     int
	Merged     int
	Improved   int
	Unresolved []string
}

// ImportText parses text in the given format and merges every entry.
// alternate marks input that may reference the other release's chart ids.
// Parse and resolve failures are recovered per record; store failures abort
// the batch.
func (im *Importer) ImportText(ctx context.Context, f parse.Format, mode chart.Mode, text string, alternate bool) (Report, error) {
	start := time.Now()
	entries, err := parse.Parse(f, mode, text)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Parsed: len(entries)}
	for _, e := range entries {
		songID, err := im.res.Resolve(e.RawTitle, e.Mode, e.Diff, alternate)
		if err != nil {
			if errors.Is(err, resolve.ErrUnresolved) {
				rep.Unresolved = append(rep.Unresolved, e.RawTitle)
				continue
			}
			return rep, err
		}
		key := chart.Key{Mode: e.Mode, SongID: songID, Diff: e.Diff}

		improved, err := im.mergeOne(ctx, key, e)
		if err != nil {
			return rep, fmt.Errorf("merge %s: %w", key, err)
		}
		rep.Merged++
		if improved {
			rep.Improved++
		}
	}

	im.cfg.Logger.Info().
		Str("format", f.String()).
		Int("parsed", rep.Parsed).
		Int("merged", rep.Merged).
		Int("improved", rep.Improved).
		Int("unresolved", len(rep.Unresolved)).
		Dur("dur", time.Since(start)).
		Msg("import complete")
	return rep, nil
}

// mergeOne runs one read-merge-write sequence under the importer lock.
func (im *Importer) mergeOne(ctx context.Context, key chart.Key, e chart.Entry) (bool, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	playedAt := e.LastPlayed
	if playedAt == "" {
		playedAt = im.cfg.Now()
	}

	var (
		oldRec *chart.ScoreRecord
		oldTS  *chart.Timestamps
	)
	rec, ts, err := im.st.Get(ctx, key)
	switch {
	case err == nil:
		oldRec, oldTS = &rec, &ts
	case errors.Is(err, store.ErrNotFound):
	default:
		return false, err
	}

	res := Merge(e, oldRec, oldTS, playedAt)
	if res.Diff.Empty() {
		return false, im.st.Put(ctx, key, res.Merged, res.TS)
	}

	pending, err := im.st.GetDiff(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	// Record, timestamps and accumulated diff land together or not at all.
	accumulated := pending.Merge(res.Diff)
	if err := im.st.PutWithDiff(ctx, key, res.Merged, res.TS, &accumulated); err != nil {
		return false, err
	}
	return true, nil
}

// ForceWrite overwrites a chart's record outright, bypassing every
// comparison, and drops any pending diff for the key even when the new
// values are worse. The diff loss on a downgrade is intentional.
func (im *Importer) ForceWrite(ctx context.Context, key chart.Key, rec chart.ScoreRecord, playedAt string) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if playedAt == "" {
		playedAt = im.cfg.Now()
	}
	ts := chart.Timestamps{
		LastPlayed: playedAt,
		ScoreAt:    playedAt,
		LampAt:     playedAt,
		MissAt:     playedAt,
	}
	return im.st.PutWithDiff(ctx, key, rec, ts, nil)
}
