// Package title canonicalizes raw song titles into the keys used by the
// song lookup table. Export files arrive with OCR artifacts, mis-encodings,
// full/half-width variants and punctuation drift; the lookup table is keyed
// by one canonical, ASCII-escaped spelling per song.
package title

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// ErrSubstitutionLoop is returned when a substitution table fails to reach a
// fixpoint. A well-formed table always terminates; the cap defends against a
// malformed remote table that rewrites a pattern into itself.
var ErrSubstitutionLoop = errors.New("title: substitution table did not converge")

const (
	maxSubstitutionPasses = 64
	// maxSubstitutionLen bounds the working string so an expanding pair in a
	// malformed remote table errors out instead of growing without bound.
	// Real titles are under a hundred bytes.
	maxSubstitutionLen = 4096
)

// wholeTitle maps known-bad export spellings to the canonical spelling.
// These are exact whole-string matches, applied once before any substring
// substitution.
var wholeTitle = map[string]string{
	"LOVE B.B.B":          "LOVE B.B.B.",
	"CHECKING YOU OUT":    "Checking You Out",
	"Harmony and Lovely":  "Harmony & Lovely",
	"Rave*it!! Rave*it!!": "Rave*it!! Rave*it!! ",
	"PARANOIA-Respect-":   "PARANOiA -Respect-",
	"uen":                 "uən",
	"Plan8":               "Plan 8",
}

// builtinPairs normalizes punctuation variants that survive the remote
// table. Applied after it, same fixpoint rule.
var builtinPairs = [][2]string{
	{"～", "〜"}, // fullwidth tilde -> wave dash
	{"－", "-"},      // fullwidth hyphen-minus
	{"！", "!"},
	{"？", "?"},
	{"＆", "&"},
	{"，", ","},
	{"　", " "}, // ideographic space
	{"’", "'"},
	{"”", "\""},
}

// Normalizer applies the whole-string table, the remotely supplied
// substitution table and the builtin pairs, in that order. It is immutable
// after construction and safe for concurrent use.
type Normalizer struct {
	remote [][2]string
}

// New builds a Normalizer around the remotely fetched substitution pairs.
func New(remote [][2]string) *Normalizer {
	pairs := make([][2]string, len(remote))
	copy(pairs, remote)
	return &Normalizer{remote: pairs}
}

// Normalize returns the canonical spelling of raw.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := raw
	if canon, ok := wholeTitle[s]; ok {
		s = canon
	}
	s, err := applyPairs(s, n.remote)
	if err != nil {
		return "", fmt.Errorf("remote table: %w", err)
	}
	s, err = applyPairs(s, builtinPairs)
	if err != nil {
		return "", fmt.Errorf("builtin table: %w", err)
	}
	return s, nil
}

// Key returns the ASCII-safe lookup key for raw: the canonical spelling with
// every rune above 0x7F escaped. The song lookup table is keyed by the same
// convention.
func (n *Normalizer) Key(raw string) (string, error) {
	s, err := n.Normalize(raw)
	if err != nil {
		return "", err
	}
	return EscapeNonASCII(s), nil
}

// applyPairs replaces every pattern until a full pass changes nothing.
// Each pass applies the pairs in order. Bounded in both passes and output
// length; a table that hits either bound is malformed.
func applyPairs(s string, pairs [][2]string) (string, error) {
	for pass := 0; pass < maxSubstitutionPasses; pass++ {
		changed := false
		for _, p := range pairs {
			if p[0] == "" {
				continue
			}
			if strings.Contains(s, p[0]) {
				replaced := strings.ReplaceAll(s, p[0], p[1])
				if replaced != s {
					s = replaced
					changed = true
				}
				if len(s) > maxSubstitutionLen {
					return "", ErrSubstitutionLoop
				}
			}
		}
		if !changed {
			return s, nil
		}
	}
	return "", ErrSubstitutionLoop
}

// EscapeNonASCII rewrites every rune above 0x7F as \u followed by 4 lowercase
// hex digits per UTF-16 code unit, so astral runes become surrogate pairs.
func EscapeNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0x7f {
			b.WriteRune(r)
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, `\u%04x`, u)
		}
	}
	return b.String()
}

// SearchKey folds raw for substring search: NFC, canonical width folding
// (fullwidth alphanumerics to ASCII, halfwidth katakana to katakana),
// hiragana to katakana, lowercase. Search only; never used for identity.
func SearchKey(raw string) string {
	s := width.Fold.String(norm.NFC.String(raw))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'ぁ' && r <= 'ゖ' {
			r += 0x60
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
