// Package parse turns raw score-export text into normalized entries. Three
// incompatible formats are supported; each maps its own clear vocabulary
// onto the shared 0-7 lamp scale and normalizes absent miss counts to the
// same absent value.
package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rhythmkit/scoregraph/internal/chart"
)

// ErrFormat is returned when the input text lacks the header markers of the
// requested (or any) format. The user picked the wrong format or pasted the
// wrong file; nothing was partially parsed.
var ErrFormat = errors.New("parse: input does not match format")

// Format selects one of the three supported export formats.
type Format uint8

const (
	Official Format = iota // format A: the service's own CSV export
	Counter                // format B: one chart per row, combined mode code
	Tabbed                 // format C: tab-separated, header-driven columns
)

func (f Format) String() string {
	switch f {
	case Official:
		return "official"
	case Counter:
		return "counter"
	case Tabbed:
		return "tabbed"
	}
	return "unknown"
}

// ParseFormat parses a format name as given on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "official", "csv", "a":
		return Official, nil
	case "counter", "b":
		return Counter, nil
	case "tabbed", "tsv", "c":
		return Tabbed, nil
	}
	return Official, fmt.Errorf("unknown format %q", s)
}

// Sniff inspects the header line and reports which format the text is in.
func Sniff(text string) (Format, error) {
	header, _, _ := strings.Cut(trimBOM(text), "\n")
	header = strings.TrimRight(header, "\r")
	switch {
	case strings.Contains(header, officialTitleCol) && strings.Contains(header, officialClearCol):
		return Official, nil
	case strings.HasPrefix(header, counterHeader):
		return Counter, nil
	case strings.Contains(header, "\t") && strings.Contains(header, "SPA score"):
		return Tabbed, nil
	}
	return Official, fmt.Errorf("%w: unrecognized header", ErrFormat)
}

// Parse dispatches to the matching parser. mode is only consulted by the
// official format, whose export files carry a single play mode without
// naming it; the other formats encode the mode per row or per column.
func Parse(f Format, mode chart.Mode, text string) ([]chart.Entry, error) {
	text = trimBOM(text)
	switch f {
	case Official:
		return parseOfficial(mode, text)
	case Counter:
		return parseCounter(text)
	case Tabbed:
		return parseTabbed(text)
	}
	return nil, fmt.Errorf("%w: unknown format", ErrFormat)
}

// trimBOM strips a UTF-8 byte order mark; exports from Windows tools often
// carry one.
func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// lines splits text into non-empty lines with trailing CR removed.
func lines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// atoiOr parses s as an integer, returning def for empty or placeholder
// cells ("-", "---").
func atoiOr(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "-") == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// missOr parses a miss-count cell, mapping empty/placeholder to absent.
func missOr(s string) chart.MissCount {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "-") == "" {
		return chart.NoMiss()
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return chart.NoMiss()
	}
	return chart.Miss(n)
}
