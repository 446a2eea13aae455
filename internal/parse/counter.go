package parse

import (
	"fmt"
	"strings"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// Counter export layout: CSV with a fixed header, one chart per row. The
// mode and difficulty arrive as one combined code ("SPA", "DPH", ...).
const counterHeader = "title,difficulty,clearlamp,score,misscount"

// counterLamps is the counter export's abbreviated clear vocabulary.
var counterLamps = map[string]chart.Lamp{
	"NP":  chart.LampNoPlay,
	"F":   chart.LampFailed,
	"AC":  chart.LampAssist,
	"EC":  chart.LampEasy,
	"C":   chart.LampClear,
	"HC":  chart.LampHard,
	"EXH": chart.LampExHard,
	"FC":  chart.LampFullCombo,
}

// splitPlayCode splits a combined code like "SPA" into mode and difficulty.
func splitPlayCode(code string) (chart.Mode, chart.Difficulty, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return chart.SP, chart.Beginner, fmt.Errorf("bad play code %q", code)
	}
	mode, err := chart.ParseMode(code[:2])
	if err != nil {
		return chart.SP, chart.Beginner, err
	}
	diff, err := chart.ParseDifficulty(code[2:])
	if err != nil {
		return chart.SP, chart.Beginner, err
	}
	return mode, diff, nil
}

func parseCounter(text string) ([]chart.Entry, error) {
	rows := lines(text)
	if len(rows) == 0 || !strings.HasPrefix(rows[0], counterHeader) {
		return nil, fmt.Errorf("%w: counter header missing", ErrFormat)
	}

	var entries []chart.Entry
	for i, row := range rows[1:] {
		// Titles are unquoted here too; the four trailing fields are fixed,
		// so split from the right.
		fields := strings.Split(row, ",")
		if len(fields) < 5 {
			return nil, fmt.Errorf("%w: row %d has %d fields, want at least 5", ErrFormat, i+2, len(fields))
		}
		n := len(fields)
		title := strings.Join(fields[:n-4], ",")
		mode, diff, err := splitPlayCode(fields[n-4])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrFormat, i+2, err)
		}
		lamp, ok := counterLamps[strings.ToUpper(strings.TrimSpace(fields[n-3]))]
		if !ok {
			return nil, fmt.Errorf("%w: row %d: unknown lamp %q", ErrFormat, i+2, fields[n-3])
		}
		if lamp == chart.LampNoPlay {
			continue
		}
		entries = append(entries, chart.Entry{
			Mode:     mode,
			RawTitle: title,
			Diff:     diff,
			Score:    atoiOr(fields[n-2], 0),
			Miss:     missOr(fields[n-1]),
			Lamp:     lamp,
			Source:   chart.SourceCounter,
		})
	}
	return entries, nil
}
