package scheme

import (
	"math"
	"strings"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

// pinyinInitials lists recognized syllable-initial consonant clusters,
// longest first so "zh"/"ch"/"sh" are preferred over a lone "z"/"c"/"s".
var pinyinInitials = []string{
	"zh", "ch", "sh",
	"b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h",
	"j", "q", "x", "r", "z", "c", "s", "y", "w",
}

// pinyinFinals lists recognized syllable finals, longest first.
var pinyinFinals = []string{
	"iang", "iong", "uang",
	"ian", "iao", "ing", "ang", "eng", "ong", "uai", "uan",
	"ua", "uo", "ui", "un", "ia", "ie", "iu", "in", "er",
	"ai", "ei", "ao", "ou", "an", "en",
	"a", "o", "e", "i", "u",
}

// pinyinWholeSyllables are zero-initial or irregular syllables that
// don't decompose as initial+final under the tables above.
var pinyinWholeSyllables = map[string]bool{
	"yi": true, "wu": true, "yu": true, "ye": true, "yue": true, "yuan": true,
	"yin": true, "yun": true, "ying": true, "wa": true, "wo": true, "wai": true,
	"wei": true, "wan": true, "wen": true, "wang": true, "weng": true,
	"er": true, "a": true, "o": true, "e": true,
}

// pinyinFinalRank gives finals and the built-in whole syllables a rough
// relative-frequency weight for segmentation tie-breaking (more common
// nuclei rank higher); used only when no dictionary-backed validator
// supplies real usage data.
var pinyinFinalRank = buildFinalRank()

func buildFinalRank() map[string]int {
	rank := make(map[string]int, len(pinyinFinals))
	for i, f := range pinyinFinals {
		rank[f] = len(pinyinFinals) - i
	}
	return rank
}

// isPinyinSyllable reports whether s decomposes into a recognized
// initial+final pair or is a known whole syllable. This is the
// built-in fallback validator; New's caller may supply a
// dictionary-backed SyllableValidator instead.
func isPinyinSyllable(s string) bool {
	if pinyinWholeSyllables[s] {
		return true
	}
	for _, initial := range pinyinInitials {
		if strings.HasPrefix(s, initial) {
			rest := s[len(initial):]
			for _, final := range pinyinFinals {
				if rest == final {
					return true
				}
			}
		}
	}
	return false
}

// syllableWeight returns a tie-break weight for s: higher is preferred.
func syllableWeight(s string) int {
	for _, initial := range pinyinInitials {
		if strings.HasPrefix(s, initial) {
			if w, ok := pinyinFinalRank[s[len(initial):]]; ok {
				return w
			}
		}
	}
	if pinyinWholeSyllables[s] {
		return len(pinyinFinals)
	}
	return 1
}

// segmentPinyin performs greedy-longest-match syllable segmentation
// over letters with a DP that prefers the segmentation whose total
// frequency product is highest, ties broken by fewer syllables, per
// §4.2. valid and weight are pluggable so the real engine can validate
// against the loaded Pinyin dictionary instead of the static tables.
func segmentPinyin(letters string, valid func(string) bool, weight func(string) int) []string {
	n := len(letters)
	if n == 0 {
		return nil
	}

	type cell struct {
		logScore float64
		count    int
		prev     int // -1 if unreachable
		syllable string
	}
	best := make([]cell, n+1)
	for i := 1; i <= n; i++ {
		best[i].prev = -2 // unreachable sentinel
	}
	best[0].prev = -1

	for end := 1; end <= n; end++ {
		for start := 0; start < end; start++ {
			if best[start].prev == -2 {
				continue // start itself unreachable
			}
			syll := letters[start:end]
			if !valid(syll) {
				continue
			}
			// weight is normalized into a (0,1) pseudo-probability before
			// taking its log: each additional syllable then multiplies
			// the running product by a fraction rather than inflating
			// it, so the comparison naturally penalizes over-segmentation
			// instead of always rewarding more syllables.
			const normalizer = 1000.0
			logScore := best[start].logScore + math.Log(float64(weight(syll))/normalizer)
			count := best[start].count + 1
			better := best[end].prev == -2
			if !better {
				const eps = 1e-9
				if logScore > best[end].logScore+eps {
					better = true
				} else if logScore > best[end].logScore-eps && count < best[end].count {
					better = true
				}
			}
			if better {
				best[end] = cell{logScore: logScore, count: count, prev: start, syllable: syll}
			}
		}
	}

	if best[n].prev == -2 {
		// No valid full segmentation: fall back to treating the
		// remaining letters as a single opaque syllable so the
		// composition still produces a lookup key.
		return []string{letters}
	}

	var syllables []string
	for at := n; at > 0; {
		syllables = append([]string{best[at].syllable}, syllables...)
		at = best[at].prev
	}
	return syllables
}

// pinyinProcessor composes a raw letter stream and segments it into
// syllables on demand.
type pinyinProcessor struct {
	raw       []rune
	validator SyllableValidator
}

func newPinyinProcessor(validator SyllableValidator) *pinyinProcessor {
	return &pinyinProcessor{validator: validator}
}

func (p *pinyinProcessor) Scheme() dictionary.Scheme { return dictionary.Pinyin }

// AcceptsKey accepts a-z plus tone marks/apostrophe, which extend the
// buffer without opening a new syllable boundary.
func (p *pinyinProcessor) AcceptsKey(vkey rune) bool {
	return (vkey >= 'a' && vkey <= 'z') || vkey == '\'' || isPinyinToneMark(vkey)
}

func isPinyinToneMark(vkey rune) bool {
	switch vkey {
	case '1', '2', '3', '4':
		return true
	default:
		return false
	}
}

func (p *pinyinProcessor) Append(vkey rune) bool {
	if !p.AcceptsKey(vkey) {
		return false
	}
	p.raw = append(p.raw, vkey)
	return true
}

// Retract removes one letter, not one syllable, to match user
// expectation (§4.2's explicit edge case).
func (p *pinyinProcessor) Retract() bool {
	if len(p.raw) == 0 {
		return false
	}
	p.raw = p.raw[:len(p.raw)-1]
	return true
}

// IsComplete is always true once the buffer is non-empty: Pinyin
// candidates refresh continuously as letters accumulate.
func (p *pinyinProcessor) IsComplete() bool {
	return len(p.raw) > 0
}

func (p *pinyinProcessor) MaterializeKeys() Materialized {
	letters := stripPinyinDecoration(string(p.raw))
	valid := isPinyinSyllable
	weight := syllableWeight
	if p.validator != nil {
		valid = func(s string) bool { return p.validator(dictionary.Pinyin, s) }
	}
	syllables := segmentPinyin(letters, valid, weight)
	return Materialized{Keys: syllables}
}

// stripPinyinDecoration removes tone digits and apostrophes, which are
// accepted into the buffer but never part of a lookup key.
func stripPinyinDecoration(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '\'' || isPinyinToneMark(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *pinyinProcessor) Reset() {
	p.raw = nil
}

func (p *pinyinProcessor) Buffer() string {
	return string(p.raw)
}

func (p *pinyinProcessor) Recapitalize(word string) string { return word }
