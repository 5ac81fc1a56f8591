package scheme

import (
	"strings"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

// romajiTable maps romaji morae to hiragana, longest key first within
// each length class so youon digraphs/trigraphs are preferred over
// their component morae.
var romajiTable = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",
	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",
	"sa": "さ", "shi": "し", "su": "す", "se": "せ", "so": "そ",
	"ta": "た", "chi": "ち", "tsu": "つ", "te": "て", "to": "と",
	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",
	"ha": "は", "hi": "ひ", "fu": "ふ", "he": "へ", "ho": "ほ",
	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",
	"ya": "や", "yu": "ゆ", "yo": "よ",
	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",
	"wa": "わ", "wo": "を",
	"ga": "が", "gi": "ぎ", "gu": "ぐ", "ge": "げ", "go": "ご",
	"za": "ざ", "ji": "じ", "zu": "ず", "ze": "ぜ", "zo": "ぞ",
	"da": "だ", "di": "ぢ", "du": "づ", "de": "で", "do": "ど",
	"ba": "ば", "bi": "び", "bu": "ぶ", "be": "べ", "bo": "ぼ",
	"pa": "ぱ", "pi": "ぴ", "pu": "ぷ", "pe": "ぺ", "po": "ぽ",
	"kya": "きゃ", "kyu": "きゅ", "kyo": "きょ",
	"sha": "しゃ", "shu": "しゅ", "sho": "しょ",
	"cha": "ちゃ", "chu": "ちゅ", "cho": "ちょ",
	"nya": "にゃ", "nyu": "にゅ", "nyo": "にょ",
	"hya": "ひゃ", "hyu": "ひゅ", "hyo": "ひょ",
	"mya": "みゃ", "myu": "みゅ", "myo": "みょ",
	"rya": "りゃ", "ryu": "りゅ", "ryo": "りょ",
	"gya": "ぎゃ", "gyu": "ぎゅ", "gyo": "ぎょ",
	"ja": "じゃ", "ju": "じゅ", "jo": "じょ",
	"bya": "びゃ", "byu": "びゅ", "byo": "びょ",
	"pya": "ぴゃ", "pyu": "ぴゅ", "pyo": "ぴょ",
}

func isVowelOrY(c byte) bool {
	switch c {
	case 'a', 'i', 'u', 'e', 'o', 'y':
		return true
	default:
		return false
	}
}

func isConsonantLetter(c byte) bool {
	return c >= 'a' && c <= 'z' && !isVowelOrY(c)
}

// convertRomaji greedily converts as much of buffer into kana as is
// unambiguous, returning the kana produced and the still-pending romaji
// tail (e.g. "ky" waiting on a vowel to complete "kya"/"kyu"/"kyo").
func convertRomaji(buffer string) (kana string, pending string) {
	var b strings.Builder
	i := 0
	for i < len(buffer) {
		remaining := buffer[i:]
		matched := false
		for _, length := range []int{3, 2, 1} {
			if len(remaining) >= length {
				if k, ok := romajiTable[remaining[:length]]; ok {
					b.WriteString(k)
					i += length
					matched = true
					break
				}
			}
		}
		if matched {
			continue
		}
		if remaining[0] == 'n' {
			if len(remaining) >= 2 && !isVowelOrY(remaining[1]) {
				b.WriteString("ん")
				i++
				continue
			}
			break // ambiguous or end of buffer: leave "n" pending
		}
		if len(remaining) >= 2 && remaining[0] == remaining[1] && isConsonantLetter(remaining[0]) {
			b.WriteString("っ") // sokuon: doubled consonant
			i++
			continue
		}
		break // incomplete prefix (e.g. "ky"): wait for more input
	}
	return b.String(), buffer[i:]
}

// japaneseProcessor composes romaji and incrementally converts it to
// kana, which doubles as the kanji dictionary lookup key.
type japaneseProcessor struct {
	raw []rune
}

func newJapaneseProcessor() *japaneseProcessor {
	return &japaneseProcessor{}
}

func (p *japaneseProcessor) Scheme() dictionary.Scheme { return dictionary.Japanese }

func (p *japaneseProcessor) AcceptsKey(vkey rune) bool {
	return vkey >= 'a' && vkey <= 'z'
}

func (p *japaneseProcessor) Append(vkey rune) bool {
	if !p.AcceptsKey(vkey) {
		return false
	}
	p.raw = append(p.raw, vkey)
	return true
}

func (p *japaneseProcessor) Retract() bool {
	if len(p.raw) == 0 {
		return false
	}
	p.raw = p.raw[:len(p.raw)-1]
	return true
}

// IsComplete is true once the trailing mora resolves to kana (no
// pending romaji tail), meaning there's a committable kana rendering.
func (p *japaneseProcessor) IsComplete() bool {
	if len(p.raw) == 0 {
		return false
	}
	kana, pending := convertRomaji(string(p.raw))
	return kana != "" && pending == ""
}

func (p *japaneseProcessor) MaterializeKeys() Materialized {
	kana, pending := convertRomaji(string(p.raw))
	// A trailing lone "n" with nothing after it resolves to ん when
	// materializing for lookup/commit, even though IsComplete treats
	// it as still-pending while more input could still arrive.
	if pending == "n" {
		kana += "ん"
	}
	return Materialized{Keys: []string{kana}, DirectCommit: kana}
}

func (p *japaneseProcessor) Reset() {
	p.raw = nil
}

func (p *japaneseProcessor) Buffer() string {
	return string(p.raw)
}

func (p *japaneseProcessor) Recapitalize(word string) string { return word }
