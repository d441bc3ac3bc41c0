// Package region maps canonical region names to the integer codes used as
// features by the price model.
package region

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/freightmatch/core/model"
	"github.com/kilianp07/freightmatch/core/translit"
)

// ErrUnknownRegion is returned when a name is not part of the vocabulary.
var ErrUnknownRegion = errors.New("unknown region")

// Encoder is an immutable name to code mapping. Codes are the positions of
// names in the sorted vocabulary.
type Encoder struct {
	names []string
	codes map[string]int
}

// Build returns an Encoder over the sorted unique set of names. Empty names
// are ignored.
func Build(names []string) *Encoder {
	seen := make(map[string]struct{}, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	codes := make(map[string]int, len(uniq))
	for i, n := range uniq {
		codes[n] = i
	}
	return &Encoder{names: uniq, codes: codes}
}

// Encode returns the code of a canonical name.
func (e *Encoder) Encode(name string) (int, error) {
	code, ok := e.codes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return code, nil
}

// Len returns the vocabulary size.
func (e *Encoder) Len() int { return len(e.names) }

// Names returns a copy of the vocabulary in code order.
func (e *Encoder) Names() []string { return append([]string(nil), e.names...) }

// VocabularyFrom collects the canonical origin and destination names of the
// given price records. A nil norm uses the built-in exceptions only.
func VocabularyFrom(records []model.PriceRecord, norm *translit.Normalizer) []string {
	norm = translit.OrDefault(norm)
	out := make([]string, 0, len(records)*2)
	for _, r := range records {
		for _, raw := range [...]string{r.Origin, r.Destination} {
			if name := norm.Canonical(translit.RegionPart(raw)); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}
