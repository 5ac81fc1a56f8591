package scheme

import (
	"github.com/maidos/ime-engine/internal/utils"
	"github.com/maidos/ime-engine/pkg/dictionary"
)

// englishProcessor composes a raw prefix for dictionary prefix lookup,
// preserving the user's original capitalization for reapplication to
// whichever candidate is ultimately committed.
type englishProcessor struct {
	raw []rune
}

func newEnglishProcessor() *englishProcessor {
	return &englishProcessor{}
}

func (p *englishProcessor) Scheme() dictionary.Scheme { return dictionary.English }

func (p *englishProcessor) AcceptsKey(vkey rune) bool {
	return (vkey >= 'a' && vkey <= 'z') || (vkey >= 'A' && vkey <= 'Z') || vkey == '\''
}

func (p *englishProcessor) Append(vkey rune) bool {
	if !p.AcceptsKey(vkey) {
		return false
	}
	p.raw = append(p.raw, vkey)
	return true
}

func (p *englishProcessor) Retract() bool {
	if len(p.raw) == 0 {
		return false
	}
	p.raw = p.raw[:len(p.raw)-1]
	return true
}

// IsComplete is always true once the buffer is non-empty: English
// prefix candidates refresh continuously as the user types, matching
// the teacher's per-keystroke completion UX.
func (p *englishProcessor) IsComplete() bool {
	return len(p.raw) > 0
}

func (p *englishProcessor) MaterializeKeys() Materialized {
	lower, _ := utils.GetCapitalDetails(string(p.raw))
	return Materialized{Keys: []string{lower}}
}

// Recapitalize reapplies this composition's original capitalization
// pattern to a dictionary match, for the session to call before a
// candidate is offered to the host.
func (p *englishProcessor) Recapitalize(word string) string {
	_, info := utils.GetCapitalDetails(string(p.raw))
	return utils.CapitalizeAtPositions(word, info)
}

func (p *englishProcessor) Reset() {
	p.raw = nil
}

func (p *englishProcessor) Buffer() string {
	return string(p.raw)
}
