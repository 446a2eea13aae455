// Package resolve maps parsed entry titles to canonical song ids.
package resolve

import (
	"errors"
	"fmt"

	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/songdata"
	"github.com/rhythmkit/scoregraph/internal/title"
)

// ErrUnresolved is returned when a normalized title has no entry in the
// lookup table. Callers collect these per batch and report them to the user;
// an unresolved entry is never merged and never silently dropped.
var ErrUnresolved = errors.New("resolve: title not in lookup table")

// Remap redirects specific chart slots of one song to an alternate id.
// A small set of songs had charts revised between the two releases of the
// game; the revised slots are musically distinct and tracked under their
// own id when the data came from the alternate release.
type Remap struct {
	AltID int
	// Changed holds play codes ("SPA", "DPH", ...) whose chart differs
	// between releases.
	Changed map[string]bool
}

// defaultRemap is the built-in remap table. Configuration data: consulted
// through the Resolver, never inline.
var defaultRemap = map[int]Remap{
	11101: {AltID: 91101, Changed: map[string]bool{"SPA": true, "DPA": true}},
	12204: {AltID: 92204, Changed: map[string]bool{"SPH": true, "SPA": true}},
	14003: {AltID: 94003, Changed: map[string]bool{"SPL": true}},
	16910: {AltID: 96910, Changed: map[string]bool{"SPA": true, "DPA": true, "DPL": true}},
	21013: {AltID: 99013, Changed: map[string]bool{"SPN": true, "SPH": true, "SPA": true}},
}

// Resolver maps titles to song ids via the normalizer and the remote lookup
// table. Immutable after construction.
type Resolver struct {
	norm      *title.Normalizer
	titleToID map[string]int
	remap     map[int]Remap
}

// New creates a Resolver over the fetched tables. remap may be nil to use
// the built-in table.
func New(tables *songdata.Tables, remap map[int]Remap) *Resolver {
	if remap == nil {
		remap = defaultRemap
	}
	return &Resolver{
		norm:      title.New(tables.Substitutions),
		titleToID: tables.TitleToID,
		remap:     remap,
	}
}

// Resolve returns the canonical song id for a raw title. alternate marks
// data that may reference the other release's charts; for those, slots
// listed as changed in the remap table are redirected to the alternate id.
func (r *Resolver) Resolve(rawTitle string, mode chart.Mode, diff chart.Difficulty, alternate bool) (int, error) {
	key, err := r.norm.Key(rawTitle)
	if err != nil {
		return 0, err
	}
	id, ok := r.titleToID[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnresolved, rawTitle)
	}
	if alternate {
		if m, ok := r.remap[id]; ok && m.Changed[mode.String()+diff.String()] {
			id = m.AltID
		}
	}
	return id, nil
}

// Normalizer exposes the resolver's title normalizer for callers that need
// search keys or canonical spellings without an id lookup.
func (r *Resolver) Normalizer() *title.Normalizer { return r.norm }
