package scheme

import (
	"strings"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

const wubiMaxCodes = 4

// wubiProcessor composes up to 4 stroke/root codes from the Wubi 86
// keyboard (a-z); complete on reaching the cap or on an explicit Space.
type wubiProcessor struct {
	codes    []rune
	complete bool
}

func newWubiProcessor() *wubiProcessor {
	return &wubiProcessor{}
}

func (p *wubiProcessor) Scheme() dictionary.Scheme { return dictionary.Wubi }

func (p *wubiProcessor) AcceptsKey(vkey rune) bool {
	if vkey == ' ' {
		return len(p.codes) > 0
	}
	return vkey >= 'a' && vkey <= 'z'
}

func (p *wubiProcessor) Append(vkey rune) bool {
	if vkey == ' ' {
		if len(p.codes) == 0 {
			return false
		}
		p.complete = true
		return true
	}
	if p.complete || len(p.codes) >= wubiMaxCodes || vkey < 'a' || vkey > 'z' {
		return false
	}
	p.codes = append(p.codes, vkey)
	if len(p.codes) == wubiMaxCodes {
		p.complete = true
	}
	return true
}

func (p *wubiProcessor) Retract() bool {
	if p.complete {
		p.complete = false
	}
	if len(p.codes) == 0 {
		return false
	}
	p.codes = p.codes[:len(p.codes)-1]
	return true
}

func (p *wubiProcessor) IsComplete() bool {
	return p.complete
}

func (p *wubiProcessor) MaterializeKeys() Materialized {
	return Materialized{Keys: []string{string(p.codes)}}
}

func (p *wubiProcessor) Reset() {
	p.codes = nil
	p.complete = false
}

func (p *wubiProcessor) Buffer() string {
	var b strings.Builder
	for _, c := range p.codes {
		b.WriteRune(c)
	}
	return b.String()
}

func (p *wubiProcessor) Recapitalize(word string) string { return word }
