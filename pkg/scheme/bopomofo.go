package scheme

import (
	"strings"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

// zhuyinKeys maps the conventional Zhuyin (Bopomofo) standard keyboard
// layout's 37 phonetic-symbol keys to their glyphs. Tone keys (3, 4, 6,
// 7) are handled separately in toneKeys since they complete a syllable
// rather than opening one. Space is not accepted by this processor, so a
// syllable with no tone mark never completes on its own.
var zhuyinKeys = map[rune]string{
	'1': "ㄅ", '2': "ㄉ", '5': "ㄓ", '8': "ㄚ", '9': "ㄞ", '0': "ㄢ", '-': "ㄦ",
	'q': "ㄆ", 'w': "ㄊ", 'e': "ㄍ", 'r': "ㄐ", 't': "ㄔ", 'y': "ㄗ", 'u': "ㄧ", 'i': "ㄛ", 'o': "ㄟ", 'p': "ㄣ",
	'a': "ㄇ", 's': "ㄋ", 'd': "ㄎ", 'f': "ㄑ", 'g': "ㄕ", 'h': "ㄖ", 'j': "ㄨ", 'k': "ㄜ", 'l': "ㄠ", ';': "ㄤ",
	'z': "ㄈ", 'x': "ㄌ", 'c': "ㄏ", 'v': "ㄒ", 'b': "ㄘ", 'n': "ㄙ", 'm': "ㄩ", ',': "ㄝ", '.': "ㄡ", '/': "ㄥ",
}

var toneKeys = map[rune]string{
	'3': "ˇ", '4': "ˋ", '6': "ˊ", '7': "˙",
}

// bopomofoProcessor composes Zhuyin syllables: a sequence of phonetic
// symbol atoms, each syllable optionally ending in a tone mark.
type bopomofoProcessor struct {
	atoms       []string
	lastWasTone bool
}

func newBopomofoProcessor() *bopomofoProcessor {
	return &bopomofoProcessor{}
}

func (p *bopomofoProcessor) Scheme() dictionary.Scheme { return dictionary.Bopomofo }

func (p *bopomofoProcessor) AcceptsKey(vkey rune) bool {
	if _, ok := zhuyinKeys[vkey]; ok {
		return true
	}
	_, ok := toneKeys[vkey]
	return ok
}

func (p *bopomofoProcessor) Append(vkey rune) bool {
	if sym, ok := zhuyinKeys[vkey]; ok {
		p.atoms = append(p.atoms, sym)
		p.lastWasTone = false
		return true
	}
	if sym, ok := toneKeys[vkey]; ok {
		if len(p.atoms) == 0 {
			return false // a tone mark needs a preceding symbol
		}
		p.atoms = append(p.atoms, sym)
		p.lastWasTone = true
		return true
	}
	return false
}

func (p *bopomofoProcessor) Retract() bool {
	if len(p.atoms) == 0 {
		return false
	}
	p.atoms = p.atoms[:len(p.atoms)-1]
	p.lastWasTone = len(p.atoms) > 0 && isToneSymbol(p.atoms[len(p.atoms)-1])
	return true
}

func isToneSymbol(sym string) bool {
	switch sym {
	case "ˇ", "ˋ", "ˊ", "˙":
		return true
	default:
		return false
	}
}

// IsComplete reports true once the most recent atom was a tone mark,
// the natural end of a Zhuyin syllable — the session transitions to
// candidate selection right after, without waiting for Space.
func (p *bopomofoProcessor) IsComplete() bool {
	return len(p.atoms) > 0 && p.lastWasTone
}

func (p *bopomofoProcessor) MaterializeKeys() Materialized {
	return Materialized{Keys: []string{strings.Join(p.atoms, "")}}
}

func (p *bopomofoProcessor) Reset() {
	p.atoms = nil
	p.lastWasTone = false
}

func (p *bopomofoProcessor) Buffer() string {
	return strings.Join(p.atoms, "")
}

func (p *bopomofoProcessor) Recapitalize(word string) string { return word }
