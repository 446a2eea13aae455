package parse

import (
	"fmt"
	"strings"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// Official export layout: 5 leading song columns, then 7 columns per
// difficulty in ordinal order, then the last-played column. Titles are not
// quoted, so a title containing commas inflates the field count; the extra
// fields are folded back into the title (the trailing layout is fixed).
const (
	officialTitleCol = "タイトル"
	officialClearCol = "クリアタイプ"

	officialLeadCols  = 5 // version, title, genre, artist, play count
	officialGroupCols = 7 // level, score, pgreat, great, miss, clear, dj level
	officialTrailCols = 1 // last played
	officialCols      = officialLeadCols + officialGroupCols*chart.NumDifficulties + officialTrailCols
)

// officialLamps is the official export's 8-entry clear vocabulary.
var officialLamps = map[string]chart.Lamp{
	"NO PLAY":         chart.LampNoPlay,
	"FAILED":          chart.LampFailed,
	"ASSIST CLEAR":    chart.LampAssist,
	"EASY CLEAR":      chart.LampEasy,
	"CLEAR":           chart.LampClear,
	"HARD CLEAR":      chart.LampHard,
	"EX HARD CLEAR":   chart.LampExHard,
	"FULLCOMBO CLEAR": chart.LampFullCombo,
}

func parseOfficial(mode chart.Mode, text string) ([]chart.Entry, error) {
	rows := lines(text)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrFormat)
	}
	header := rows[0]
	if !strings.Contains(header, officialTitleCol) || !strings.Contains(header, officialClearCol) {
		return nil, fmt.Errorf("%w: official header markers missing", ErrFormat)
	}

	var entries []chart.Entry
	for i, row := range rows[1:] {
		fields := strings.Split(row, ",")
		if len(fields) < officialCols {
			return nil, fmt.Errorf("%w: row %d has %d fields, want at least %d",
				ErrFormat, i+2, len(fields), officialCols)
		}
		// Commas inside the title push everything right; fold extras back.
		extra := len(fields) - officialCols
		title := strings.Join(fields[1:2+extra], ",")
		groups := fields[officialLeadCols+extra:]
		lastPlayed := strings.TrimSpace(groups[officialGroupCols*chart.NumDifficulties])

		for d := 0; d < chart.NumDifficulties; d++ {
			g := groups[d*officialGroupCols : (d+1)*officialGroupCols]
			label := strings.TrimSpace(g[5])
			lamp, ok := officialLamps[label]
			if !ok {
				return nil, fmt.Errorf("%w: row %d: unknown clear type %q", ErrFormat, i+2, label)
			}
			// No-play rows carry no information; they are dropped, not
			// merged as zeroes.
			if lamp == chart.LampNoPlay {
				continue
			}
			entries = append(entries, chart.Entry{
				Mode:       mode,
				RawTitle:   title,
				Diff:       chart.Difficulty(d),
				Score:      atoiOr(g[1], 0),
				Miss:       missOr(g[4]),
				Lamp:       lamp,
				Source:     chart.SourceOfficial,
				LastPlayed: lastPlayed,
			})
		}
	}
	return entries, nil
}
