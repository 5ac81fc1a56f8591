package scheme

import (
	"strings"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

const cangjieMaxRadicals = 5

// cangjieRadicals maps the 24 Cangjie input letters (a-y excluding v,
// the standard Cangjie keyboard) to their radical glyphs.
var cangjieRadicals = map[rune]string{
	'a': "日", 'b': "月", 'c': "金", 'd': "木", 'e': "水", 'f': "火", 'g': "土",
	'h': "竹", 'i': "戈", 'j': "十", 'k': "大", 'l': "中", 'm': "一", 'n': "弓",
	'o': "人", 'p': "心", 'q': "手", 'r': "口", 's': "尸", 't': "廿", 'u': "山",
	'w': "女", 'x': "田", 'y': "卜",
}

// cangjieProcessor composes up to 5 radical codes; complete on
// reaching the cap or on an explicit Space.
type cangjieProcessor struct {
	radicals []string
	complete bool
}

func newCangjieProcessor() *cangjieProcessor {
	return &cangjieProcessor{}
}

func (p *cangjieProcessor) Scheme() dictionary.Scheme { return dictionary.Cangjie }

func (p *cangjieProcessor) AcceptsKey(vkey rune) bool {
	if vkey == ' ' {
		return len(p.radicals) > 0
	}
	_, ok := cangjieRadicals[vkey]
	return ok
}

func (p *cangjieProcessor) Append(vkey rune) bool {
	if vkey == ' ' {
		if len(p.radicals) == 0 {
			return false
		}
		p.complete = true
		return true
	}
	if p.complete || len(p.radicals) >= cangjieMaxRadicals {
		return false
	}
	sym, ok := cangjieRadicals[vkey]
	if !ok {
		return false
	}
	p.radicals = append(p.radicals, sym)
	if len(p.radicals) == cangjieMaxRadicals {
		p.complete = true
	}
	return true
}

func (p *cangjieProcessor) Retract() bool {
	if p.complete {
		p.complete = false
	}
	if len(p.radicals) == 0 {
		return false
	}
	p.radicals = p.radicals[:len(p.radicals)-1]
	return true
}

func (p *cangjieProcessor) IsComplete() bool {
	return p.complete
}

func (p *cangjieProcessor) MaterializeKeys() Materialized {
	return Materialized{Keys: []string{strings.Join(p.radicals, "")}}
}

func (p *cangjieProcessor) Reset() {
	p.radicals = nil
	p.complete = false
}

func (p *cangjieProcessor) Buffer() string {
	return strings.Join(p.radicals, "")
}

func (p *cangjieProcessor) Recapitalize(word string) string { return word }
