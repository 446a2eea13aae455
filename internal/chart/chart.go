// Package chart defines the identity and record types shared by the
// parsers, the resolver, the reconciliation engine and the stores.
package chart

import "fmt"

// Mode is the play mode a chart belongs to.
type Mode uint8

const (
	SP Mode = iota // single play
	DP             // double play
)

func (m Mode) String() string {
	if m == DP {
		return "DP"
	}
	return "SP"
}

// ParseMode parses "SP" or "DP".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "SP", "sp":
		return SP, nil
	case "DP", "dp":
		return DP, nil
	}
	return SP, fmt.Errorf("unknown mode %q", s)
}

// Difficulty is one of the five chart slots of a song. The ordinal order is
// fixed; external metadata feeds supply per-difficulty values as 5-element
// arrays indexed by this ordinal.
type Difficulty uint8

const (
	Beginner Difficulty = iota
	Normal
	Hyper
	Another
	Leggendaria

	NumDifficulties = 5
)

var difficultyLetters = [NumDifficulties]string{"B", "N", "H", "A", "L"}

func (d Difficulty) String() string {
	if int(d) < len(difficultyLetters) {
		return difficultyLetters[d]
	}
	return "?"
}

// ParseDifficulty parses a single difficulty letter.
func ParseDifficulty(s string) (Difficulty, error) {
	for i, l := range difficultyLetters {
		if s == l {
			return Difficulty(i), nil
		}
	}
	return Beginner, fmt.Errorf("unknown difficulty %q", s)
}

// Key identifies one playable chart: one difficulty of one song in one mode.
type Key struct {
	Mode   Mode
	SongID int
	Diff   Difficulty
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Mode, k.SongID, k.Diff)
}

// Lamp is the 0-7 clear rank shared by all input formats. Each parser maps
// its own clear vocabulary onto this scale; higher is better.
type Lamp int

const (
	LampNoPlay Lamp = iota
	LampFailed
	LampAssist
	LampEasy
	LampClear
	LampHard
	LampExHard
	LampFullCombo
)

var lampNames = [8]string{
	"NO PLAY", "FAILED", "ASSIST CLEAR", "EASY CLEAR",
	"CLEAR", "HARD CLEAR", "EX HARD CLEAR", "FULLCOMBO CLEAR",
}

func (l Lamp) String() string {
	if l >= 0 && int(l) < len(lampNames) {
		return lampNames[l]
	}
	return "UNKNOWN"
}

// Valid reports whether l is on the 0-7 scale.
func (l Lamp) Valid() bool { return l >= LampNoPlay && l <= LampFullCombo }

// MissCountNone is the serialized form of an absent miss count. It only
// appears at the backup/HTTP boundary; in-process code uses MissCount.Valid.
const MissCountNone = -1

// MissCount is a recorded miss count, or absent when a source never reported
// one. Absent must lose every lower-is-better comparison: a real count always
// beats it, and it never beats a real count.
type MissCount struct {
	Count int
	Valid bool
}

// Miss returns a present miss count.
func Miss(n int) MissCount { return MissCount{Count: n, Valid: true} }

// NoMiss returns the absent miss count.
func NoMiss() MissCount { return MissCount{} }

// BeatenBy reports whether candidate is a strict improvement over m.
// A real count beats Absent; Absent never beats anything; between two real
// counts, strictly smaller wins.
func (m MissCount) BeatenBy(candidate MissCount) bool {
	if !candidate.Valid {
		return false
	}
	if !m.Valid {
		return true
	}
	return candidate.Count < m.Count
}

// Sentinel returns the boundary encoding: the count, or MissCountNone when
// absent.
func (m MissCount) Sentinel() int {
	if !m.Valid {
		return MissCountNone
	}
	return m.Count
}

// MissFromSentinel decodes the boundary encoding.
func MissFromSentinel(n int) MissCount {
	if n < 0 {
		return NoMiss()
	}
	return Miss(n)
}

// ScoreRecord is the persisted best record for one chart. Score and Lamp are
// non-decreasing and Miss (when present) non-increasing for the life of the
// record, except under an explicit force overwrite.
type ScoreRecord struct {
	Score    int
	Lamp     Lamp
	Miss     MissCount
	Unlocked bool
}

// Empty reports whether the record carries no play data at all: the shape a
// source emits when it merely declares a chart exists or is unlocked.
func (r ScoreRecord) Empty() bool {
	return r.Score == 0 && r.Lamp == LampNoPlay && !r.Miss.Valid
}

// Epoch is the backdate sentinel written as LastPlayed when a first merge
// carries no play data. RFC3339 strings sort lexicographically, so it orders
// before any real timestamp.
const Epoch = "1970-01-01T00:00:00Z"

// Timestamps tracks when a chart was last parsed and when each best-record
// field last improved. Values are opaque sortable RFC3339 strings.
type Timestamps struct {
	LastPlayed string
	ScoreAt    string
	LampAt     string
	MissAt     string
}

// FieldDiff is one field's improvement since the diff store was last reset.
type FieldDiff struct {
	Old int
	New int
}

// Diff accumulates per-field improvements for one chart across merges. A nil
// field means that field has not improved since the last reset.
type Diff struct {
	Score *FieldDiff
	Lamp  *FieldDiff
	Miss  *FieldDiff
}

// Empty reports whether no field changed.
func (d Diff) Empty() bool { return d.Score == nil && d.Lamp == nil && d.Miss == nil }

// Merge folds a newer diff into d, keeping the oldest Old and newest New per
// field so the accumulated diff spans the whole since-reset window.
func (d Diff) Merge(newer Diff) Diff {
	out := d
	if newer.Score != nil {
		if out.Score == nil {
			out.Score = &FieldDiff{Old: newer.Score.Old}
		}
		out.Score = &FieldDiff{Old: out.Score.Old, New: newer.Score.New}
	}
	if newer.Lamp != nil {
		if out.Lamp == nil {
			out.Lamp = &FieldDiff{Old: newer.Lamp.Old}
		}
		out.Lamp = &FieldDiff{Old: out.Lamp.Old, New: newer.Lamp.New}
	}
	if newer.Miss != nil {
		if out.Miss == nil {
			out.Miss = &FieldDiff{Old: newer.Miss.Old}
		}
		out.Miss = &FieldDiff{Old: out.Miss.Old, New: newer.Miss.New}
	}
	return out
}

// Source identifies which input format produced an Entry. The merge needs it
// because only the tab-separated format can assert unlock state.
type Source uint8

const (
	SourceOfficial Source = iota // format A
	SourceCounter                // format B
	SourceTabbed                 // format C
	SourceManual                 // manual edit
)

func (s Source) String() string {
	switch s {
	case SourceOfficial:
		return "official"
	case SourceCounter:
		return "counter"
	case SourceTabbed:
		return "tabbed"
	case SourceManual:
		return "manual"
	}
	return "unknown"
}

// Entry is a parsed record before title resolution. RawTitle has not been
// normalized; LastPlayed is empty when the format carries no play date.
type Entry struct {
	Mode       Mode
	RawTitle   string
	Diff       Difficulty
	Score      int
	Miss       MissCount
	Lamp       Lamp
	Unlocked   bool
	Source     Source
	LastPlayed string
}

// Snapshot is the full contents of the three persisted stores, used for
// backup and wholesale restore.
type Snapshot struct {
	Best  map[Key]ScoreRecord
	Times map[Key]Timestamps
	Diffs map[Key]Diff
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() Snapshot {
	return Snapshot{
		Best:  make(map[Key]ScoreRecord),
		Times: make(map[Key]Timestamps),
		Diffs: make(map[Key]Diff),
	}
}
