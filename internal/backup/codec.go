// Package backup serializes the three persisted stores to a portable
// compact string: key-shortened JSON, zstd-compressed, URL-safe base64.
// Encode and Decode are exact inverses; a decode failure rejects the whole
// backup, nothing is partially applied.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// ErrCorrupt is returned when a backup string fails any stage of decoding
// or schema validation.
var ErrCorrupt = errors.New("backup: corrupt or unsupported backup data")

// magic prefixes the compressed payload; the trailing byte is the format
// version.
var magic = []byte{'S', 'G', 'B', 1}

var (
	zenc *zstd.Encoder
	zdec *zstd.Decoder
)

func init() {
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zdec, _ = zstd.NewReader(nil)
}

// Compact document shape: mode -> song id -> difficulty -> record, with
// single-letter keys. The miss count keeps its sentinel encoding here
// (-1 = absent); a missing key also decodes to absent.
type compactRecord struct {
	Score    int  `json:"s"`
	Lamp     int  `json:"c"`
	Miss     *int `json:"m"`
	Unlocked bool `json:"u,omitempty"`
}

type compactTimes struct {
	LastPlayed string `json:"p,omitempty"`
	ScoreAt    string `json:"ps,omitempty"`
	LampAt     string `json:"pc,omitempty"`
	MissAt     string `json:"pm,omitempty"`
}

type compactDiff struct {
	Score []int `json:"s,omitempty"`
	Lamp  []int `json:"c,omitempty"`
	Miss  []int `json:"m,omitempty"`
}

type compactDoc struct {
	Best  map[string]map[string]map[string]compactRecord `json:"b"`
	Times map[string]map[string]map[string]compactTimes  `json:"t"`
	Diffs map[string]map[string]map[string]compactDiff   `json:"d"`
}

// Encode serializes a snapshot to the compact backup string.
func Encode(s chart.Snapshot) (string, error) {
	doc := compactDoc{
		Best:  map[string]map[string]map[string]compactRecord{},
		Times: map[string]map[string]map[string]compactTimes{},
		Diffs: map[string]map[string]map[string]compactDiff{},
	}
	for key, rec := range s.Best {
		miss := rec.Miss.Sentinel()
		setNested(doc.Best, key, compactRecord{
			Score:    rec.Score,
			Lamp:     int(rec.Lamp),
			Miss:     &miss,
			Unlocked: rec.Unlocked,
		})
	}
	for key, ts := range s.Times {
		setNested(doc.Times, key, compactTimes{
			LastPlayed: ts.LastPlayed,
			ScoreAt:    ts.ScoreAt,
			LampAt:     ts.LampAt,
			MissAt:     ts.MissAt,
		})
	}
	for key, d := range s.Diffs {
		cd := compactDiff{}
		if d.Score != nil {
			cd.Score = []int{d.Score.Old, d.Score.New}
		}
		if d.Lamp != nil {
			cd.Lamp = []int{d.Lamp.Old, d.Lamp.New}
		}
		if d.Miss != nil {
			cd.Miss = []int{d.Miss.Old, d.Miss.New}
		}
		setNested(doc.Diffs, key, cd)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	payload := append(append([]byte{}, magic...), zenc.EncodeAll(raw, nil)...)
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode parses a compact backup string back into a snapshot.
func Decode(enc string) (chart.Snapshot, error) {
	payload, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return chart.Snapshot{}, fmt.Errorf("%w: base64: %v", ErrCorrupt, err)
	}
	if len(payload) < len(magic) ||
		payload[0] != magic[0] || payload[1] != magic[1] || payload[2] != magic[2] {
		return chart.Snapshot{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if payload[3] != magic[3] {
		return chart.Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, payload[3])
	}
	raw, err := zdec.DecodeAll(payload[len(magic):], nil)
	if err != nil {
		return chart.Snapshot{}, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}

	var doc compactDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return chart.Snapshot{}, fmt.Errorf("%w: json: %v", ErrCorrupt, err)
	}

	out := chart.NewSnapshot()
	for modeS, songs := range doc.Best {
		for songS, diffs := range songs {
			for diffS, cr := range diffs {
				key, err := parseKey(modeS, songS, diffS)
				if err != nil {
					return chart.Snapshot{}, err
				}
				if cr.Score < 0 || cr.Lamp < 0 || cr.Lamp > int(chart.LampFullCombo) {
					return chart.Snapshot{}, fmt.Errorf("%w: record out of range at %s", ErrCorrupt, key)
				}
				rec := chart.ScoreRecord{
					Score:    cr.Score,
					Lamp:     chart.Lamp(cr.Lamp),
					Unlocked: cr.Unlocked,
				}
				if cr.Miss != nil {
					rec.Miss = chart.MissFromSentinel(*cr.Miss)
				}
				out.Best[key] = rec
			}
		}
	}
	for modeS, songs := range doc.Times {
		for songS, diffs := range songs {
			for diffS, ct := range diffs {
				key, err := parseKey(modeS, songS, diffS)
				if err != nil {
					return chart.Snapshot{}, err
				}
				out.Times[key] = chart.Timestamps{
					LastPlayed: ct.LastPlayed,
					ScoreAt:    ct.ScoreAt,
					LampAt:     ct.LampAt,
					MissAt:     ct.MissAt,
				}
			}
		}
	}
	for modeS, songs := range doc.Diffs {
		for songS, diffs := range songs {
			for diffS, cd := range diffs {
				key, err := parseKey(modeS, songS, diffS)
				if err != nil {
					return chart.Snapshot{}, err
				}
				d, err := diffFromCompact(cd)
				if err != nil {
					return chart.Snapshot{}, fmt.Errorf("%w at %s", err, key)
				}
				out.Diffs[key] = d
			}
		}
	}
	return out, nil
}

func diffFromCompact(cd compactDiff) (chart.Diff, error) {
	var d chart.Diff
	for _, f := range []struct {
		vals []int
		dst  **chart.FieldDiff
	}{
		{cd.Score, &d.Score},
		{cd.Lamp, &d.Lamp},
		{cd.Miss, &d.Miss},
	} {
		if f.vals == nil {
			continue
		}
		if len(f.vals) != 2 {
			return chart.Diff{}, fmt.Errorf("%w: diff pair length %d", ErrCorrupt, len(f.vals))
		}
		*f.dst = &chart.FieldDiff{Old: f.vals[0], New: f.vals[1]}
	}
	return d, nil
}

func parseKey(modeS, songS, diffS string) (chart.Key, error) {
	mode, err := chart.ParseMode(modeS)
	if err != nil {
		return chart.Key{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	songID, err := strconv.Atoi(songS)
	if err != nil || songID <= 0 {
		return chart.Key{}, fmt.Errorf("%w: bad song id %q", ErrCorrupt, songS)
	}
	diff, err := chart.ParseDifficulty(diffS)
	if err != nil {
		return chart.Key{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return chart.Key{Mode: mode, SongID: songID, Diff: diff}, nil
}

func setNested[V any](m map[string]map[string]map[string]V, key chart.Key, v V) {
	modeS := key.Mode.String()
	songS := strconv.Itoa(key.SongID)
	if m[modeS] == nil {
		m[modeS] = map[string]map[string]V{}
	}
	if m[modeS][songS] == nil {
		m[modeS][songS] = map[string]V{}
	}
	m[modeS][songS][key.Diff.String()] = v
}
