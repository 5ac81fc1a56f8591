package dictionary

import (
	"encoding/json"
	"os"
	"strings"
)

// ConvertDirection selects which way convert_t_s runs.
type ConvertDirection int

const (
	TraditionalToSimplified ConvertDirection = iota
	SimplifiedToTraditional
)

// ConversionTable is a bidirectional Traditional⇄Simplified code point
// mapping. Round-tripping a character that's in the table is idempotent;
// a character outside the table passes through unchanged.
type ConversionTable struct {
	tToS map[rune]rune
	sToT map[rune]rune
}

// conversionSource is the on-disk shape of the T/S mapping file: a flat
// array of one-to-one Traditional/Simplified pairs.
type conversionSource struct {
	Traditional string `json:"traditional"`
	Simplified  string `json:"simplified"`
}

// loadConversionTable reads a JSON array of {traditional, simplified}
// single-character pairs and builds both lookup directions. A missing
// file yields an empty (pass-through only) table rather than an error,
// since T/S conversion is optional supplementary data.
func loadConversionTable(path string) (*ConversionTable, error) {
	table := &ConversionTable{tToS: map[rune]rune{}, sToT: map[rune]rune{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return table, nil
	}
	if err != nil {
		return nil, err
	}

	var pairs []conversionSource
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		tr := []rune(pair.Traditional)
		si := []rune(pair.Simplified)
		if len(tr) != 1 || len(si) != 1 {
			continue
		}
		table.tToS[tr[0]] = si[0]
		table.sToT[si[0]] = tr[0]
	}
	return table, nil
}

// Convert applies the conversion table character-by-character in the
// given direction; characters absent from the table pass through
// unchanged.
func (t *ConversionTable) Convert(text string, direction ConvertDirection) string {
	mapping := t.tToS
	if direction == SimplifiedToTraditional {
		mapping = t.sToT
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if mapped, ok := mapping[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
