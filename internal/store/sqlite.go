package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

const schema = `
CREATE TABLE IF NOT EXISTS scores (
	mode        TEXT    NOT NULL,
	song_id     INTEGER NOT NULL,
	diff        TEXT    NOT NULL,
	score       INTEGER NOT NULL,
	lamp        INTEGER NOT NULL,
	miss        INTEGER NOT NULL,
	unlocked    INTEGER NOT NULL,
	last_played TEXT    NOT NULL,
	score_at    TEXT    NOT NULL,
	lamp_at     TEXT    NOT NULL,
	miss_at     TEXT    NOT NULL,
	PRIMARY KEY (mode, song_id, diff)
);
CREATE TABLE IF NOT EXISTS diffs (
	mode      TEXT    NOT NULL,
	song_id   INTEGER NOT NULL,
	diff      TEXT    NOT NULL,
	score_old INTEGER,
	score_new INTEGER,
	lamp_old  INTEGER,
	lamp_new  INTEGER,
	miss_old  INTEGER,
	miss_new  INTEGER,
	PRIMARY KEY (mode, song_id, diff)
);
`

// SQLiteStore is a durable Store over a single sqlite database file.
// The miss count is stored in its sentinel encoding (-1 = absent), matching
// the backup format.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// The store is single-writer by contract; one connection keeps sqlite's
	// own locking out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key chart.Key) (chart.ScoreRecord, chart.Timestamps, error) {
	var (
		rec  chart.ScoreRecord
		ts   chart.Timestamps
		miss int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT score, lamp, miss, unlocked, last_played, score_at, lamp_at, miss_at
		FROM scores WHERE mode = ? AND song_id = ? AND diff = ?`,
		key.Mode.String(), key.SongID, key.Diff.String(),
	).Scan(&rec.Score, &rec.Lamp, &miss, &rec.Unlocked,
		&ts.LastPlayed, &ts.ScoreAt, &ts.LampAt, &ts.MissAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chart.ScoreRecord{}, chart.Timestamps{}, ErrNotFound
	}
	if err != nil {
		return chart.ScoreRecord{}, chart.Timestamps{}, err
	}
	rec.Miss = chart.MissFromSentinel(miss)
	return rec, ts, nil
}

func (s *SQLiteStore) GetDiff(ctx context.Context, key chart.Key) (chart.Diff, error) {
	var so, sn, lo, ln, mo, mn sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT score_old, score_new, lamp_old, lamp_new, miss_old, miss_new
		FROM diffs WHERE mode = ? AND song_id = ? AND diff = ?`,
		key.Mode.String(), key.SongID, key.Diff.String(),
	).Scan(&so, &sn, &lo, &ln, &mo, &mn)
	if errors.Is(err, sql.ErrNoRows) {
		return chart.Diff{}, ErrNotFound
	}
	if err != nil {
		return chart.Diff{}, err
	}
	return diffFromNullable(so, sn, lo, ln, mo, mn), nil
}

func diffFromNullable(so, sn, lo, ln, mo, mn sql.NullInt64) chart.Diff {
	var d chart.Diff
	if so.Valid && sn.Valid {
		d.Score = &chart.FieldDiff{Old: int(so.Int64), New: int(sn.Int64)}
	}
	if lo.Valid && ln.Valid {
		d.Lamp = &chart.FieldDiff{Old: int(lo.Int64), New: int(ln.Int64)}
	}
	if mo.Valid && mn.Valid {
		d.Miss = &chart.FieldDiff{Old: int(mo.Int64), New: int(mn.Int64)}
	}
	return d
}

func nullable(f *chart.FieldDiff) (sql.NullInt64, sql.NullInt64) {
	if f == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f.Old), Valid: true},
		sql.NullInt64{Int64: int64(f.New), Valid: true}
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (chart.Snapshot, error) {
	out := chart.NewSnapshot()

	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, song_id, diff, score, lamp, miss, unlocked,
		       last_played, score_at, lamp_at, miss_at FROM scores`)
	if err != nil {
		return chart.Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			modeS, diffS string
			key          chart.Key
			rec          chart.ScoreRecord
			ts           chart.Timestamps
			miss         int
		)
		if err := rows.Scan(&modeS, &key.SongID, &diffS, &rec.Score, &rec.Lamp, &miss,
			&rec.Unlocked, &ts.LastPlayed, &ts.ScoreAt, &ts.LampAt, &ts.MissAt); err != nil {
			return chart.Snapshot{}, err
		}
		if key.Mode, err = chart.ParseMode(modeS); err != nil {
			return chart.Snapshot{}, err
		}
		if key.Diff, err = chart.ParseDifficulty(diffS); err != nil {
			return chart.Snapshot{}, err
		}
		rec.Miss = chart.MissFromSentinel(miss)
		out.Best[key] = rec
		out.Times[key] = ts
	}
	if err := rows.Err(); err != nil {
		return chart.Snapshot{}, err
	}

	drows, err := s.db.QueryContext(ctx, `
		SELECT mode, song_id, diff, score_old, score_new, lamp_old, lamp_new,
		       miss_old, miss_new FROM diffs`)
	if err != nil {
		return chart.Snapshot{}, err
	}
	defer drows.Close()
	for drows.Next() {
		var (
			modeS, diffS           string
			key                    chart.Key
			so, sn, lo, ln, mo, mn sql.NullInt64
		)
		if err := drows.Scan(&modeS, &key.SongID, &diffS, &so, &sn, &lo, &ln, &mo, &mn); err != nil {
			return chart.Snapshot{}, err
		}
		if key.Mode, err = chart.ParseMode(modeS); err != nil {
			return chart.Snapshot{}, err
		}
		if key.Diff, err = chart.ParseDifficulty(diffS); err != nil {
			return chart.Snapshot{}, err
		}
		out.Diffs[key] = diffFromNullable(so, sn, lo, ln, mo, mn)
	}
	if err := drows.Err(); err != nil {
		return chart.Snapshot{}, err
	}
	return out, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scores (mode, song_id, diff, score, lamp, miss, unlocked,
		                    last_played, score_at, lamp_at, miss_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mode, song_id, diff) DO UPDATE SET
			score = excluded.score, lamp = excluded.lamp, miss = excluded.miss,
			unlocked = excluded.unlocked, last_played = excluded.last_played,
			score_at = excluded.score_at, lamp_at = excluded.lamp_at,
			miss_at = excluded.miss_at`,
		key.Mode.String(), key.SongID, key.Diff.String(),
		rec.Score, int(rec.Lamp), rec.Miss.Sentinel(), rec.Unlocked,
		ts.LastPlayed, ts.ScoreAt, ts.LampAt, ts.MissAt)
	return err
}

func (s *SQLiteStore) PutWithDiff(ctx context.Context, key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps, d *chart.Diff) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scores (mode, song_id, diff, score, lamp, miss, unlocked,
		                    last_played, score_at, lamp_at, miss_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mode, song_id, diff) DO UPDATE SET
			score = excluded.score, lamp = excluded.lamp, miss = excluded.miss,
			unlocked = excluded.unlocked, last_played = excluded.last_played,
			score_at = excluded.score_at, lamp_at = excluded.lamp_at,
			miss_at = excluded.miss_at`,
		key.Mode.String(), key.SongID, key.Diff.String(),
		rec.Score, int(rec.Lamp), rec.Miss.Sentinel(), rec.Unlocked,
		ts.LastPlayed, ts.ScoreAt, ts.LampAt, ts.MissAt); err != nil {
		return err
	}

	if d == nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM diffs WHERE mode = ? AND song_id = ? AND diff = ?`,
			key.Mode.String(), key.SongID, key.Diff.String()); err != nil {
			return err
		}
	} else {
		so, sn := nullable(d.Score)
		lo, ln := nullable(d.Lamp)
		mo, mn := nullable(d.Miss)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diffs (mode, song_id, diff, score_old, score_new,
			                   lamp_old, lamp_new, miss_old, miss_new)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (mode, song_id, diff) DO UPDATE SET
				score_old = excluded.score_old, score_new = excluded.score_new,
				lamp_old = excluded.lamp_old, lamp_new = excluded.lamp_new,
				miss_old = excluded.miss_old, miss_new = excluded.miss_new`,
			key.Mode.String(), key.SongID, key.Diff.String(), so, sn, lo, ln, mo, mn); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) PutDiff(ctx context.Context, key chart.Key, d chart.Diff) error {
	so, sn := nullable(d.Score)
	lo, ln := nullable(d.Lamp)
	mo, mn := nullable(d.Miss)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diffs (mode, song_id, diff, score_old, score_new,
		                   lamp_old, lamp_new, miss_old, miss_new)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mode, song_id, diff) DO UPDATE SET
			score_old = excluded.score_old, score_new = excluded.score_new,
			lamp_old = excluded.lamp_old, lamp_new = excluded.lamp_new,
			miss_old = excluded.miss_old, miss_new = excluded.miss_new`,
		key.Mode.String(), key.SongID, key.Diff.String(), so, sn, lo, ln, mo, mn)
	return err
}

func (s *SQLiteStore) ClearDiff(ctx context.Context, key chart.Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM diffs WHERE mode = ? AND song_id = ? AND diff = ?`,
		key.Mode.String(), key.SongID, key.Diff.String())
	return err
}

func (s *SQLiteStore) ClearDiffs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM diffs`)
	return err
}

// Restore replaces the whole database contents in one transaction.
func (s *SQLiteStore) Restore(ctx context.Context, snap chart.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM diffs`); err != nil {
		return err
	}
	for key, rec := range snap.Best {
		ts := snap.Times[key]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scores (mode, song_id, diff, score, lamp, miss, unlocked,
			                    last_played, score_at, lamp_at, miss_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key.Mode.String(), key.SongID, key.Diff.String(),
			rec.Score, int(rec.Lamp), rec.Miss.Sentinel(), rec.Unlocked,
			ts.LastPlayed, ts.ScoreAt, ts.LampAt, ts.MissAt); err != nil {
			return err
		}
	}
	for key, d := range snap.Diffs {
		so, sn := nullable(d.Score)
		lo, ln := nullable(d.Lamp)
		mo, mn := nullable(d.Miss)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO diffs (mode, song_id, diff, score_old, score_new,
			                   lamp_old, lamp_new, miss_old, miss_new)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key.Mode.String(), key.SongID, key.Diff.String(), so, sn, lo, ln, mo, mn); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
