package parse

import (
	"fmt"
	"strings"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// Tabbed export layout: tab-separated with a header row; columns are looked
// up by name, constructed as "{mode}{difficulty} {field}" for every mode and
// difficulty combination. This is the only format that can assert a chart is
// unlocked without having been played.
var tabbedFields = []string{"score", "clear", "miss", "unlocked"}

type tabbedCols struct {
	score, clear, miss, unlocked int // -1 when the column is absent
}

func parseTabbed(text string) ([]chart.Entry, error) {
	rows := lines(text)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrFormat)
	}
	header := strings.Split(rows[0], "\t")
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	titleCol, ok := index["title"]
	if !ok || len(index) < 2 {
		return nil, fmt.Errorf("%w: tabbed header missing title column", ErrFormat)
	}

	// Resolve every chart slot's column group up front.
	type slot struct {
		mode chart.Mode
		diff chart.Difficulty
		cols tabbedCols
	}
	var slots []slot
	sawAny := false
	for _, mode := range []chart.Mode{chart.SP, chart.DP} {
		for d := 0; d < chart.NumDifficulties; d++ {
			diff := chart.Difficulty(d)
			prefix := mode.String() + diff.String() + " "
			cols := tabbedCols{score: -1, clear: -1, miss: -1, unlocked: -1}
			for _, f := range tabbedFields {
				if i, ok := index[prefix+f]; ok {
					switch f {
					case "score":
						cols.score = i
					case "clear":
						cols.clear = i
					case "miss":
						cols.miss = i
					case "unlocked":
						cols.unlocked = i
					}
					sawAny = true
				}
			}
			if cols.clear >= 0 || cols.unlocked >= 0 {
				slots = append(slots, slot{mode: mode, diff: diff, cols: cols})
			}
		}
	}
	if !sawAny {
		return nil, fmt.Errorf("%w: no chart columns in tabbed header", ErrFormat)
	}

	cell := func(fields []string, i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	var entries []chart.Entry
	for _, row := range rows[1:] {
		fields := strings.Split(row, "\t")
		title := cell(fields, titleCol)
		if title == "" {
			continue
		}
		for _, sl := range slots {
			lamp := chart.Lamp(atoiOr(cell(fields, sl.cols.clear), 0))
			if !lamp.Valid() {
				return nil, fmt.Errorf("%w: clear value out of range for %q", ErrFormat, title)
			}
			unlocked := isTruthy(cell(fields, sl.cols.unlocked))
			// Unlocked-but-unplayed rows are kept: this format alone can
			// declare that a chart exists without play data.
			if lamp == chart.LampNoPlay && !unlocked {
				continue
			}
			entries = append(entries, chart.Entry{
				Mode:     sl.mode,
				RawTitle: title,
				Diff:     sl.diff,
				Score:    atoiOr(cell(fields, sl.cols.score), 0),
				Miss:     missOr(cell(fields, sl.cols.miss)),
				Lamp:     lamp,
				Unlocked: unlocked,
				Source:   chart.SourceTabbed,
			})
		}
	}
	return entries, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
