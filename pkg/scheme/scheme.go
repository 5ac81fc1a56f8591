// Package scheme implements the Scheme Processors (C2): per-scheme
// keystroke interpretation, syllable segmentation, and key materialization
// for Bopomofo, Cangjie, Wubi, Pinyin, English, and Japanese composition.
//
// Every processor implements the shared Processor interface — accepts_key,
// append, retract, is_complete, materialize_keys, reset — so the Session
// State Machine (pkg/session) can drive any scheme identically; only
// construction differs per scheme.
package scheme

import (
	"fmt"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

// Materialized is the set of Dictionary Store lookup keys a scheme
// produces from its current composition buffer, per §4.2.
type Materialized struct {
	// Keys are the ordered lookup keys for dictionary.Store.Lookup.
	// Bopomofo/Cangjie/Wubi/English produce exactly one; Pinyin
	// produces one key per segmented syllable.
	Keys []string
	// DirectCommit is the scheme's own rendering of the composition,
	// usable as a commit target without a dictionary hit (e.g.
	// Japanese kana, or the raw English prefix). Empty when the
	// scheme has no such direct rendering.
	DirectCommit string
}

// Processor is the capability set every scheme implements (§4.2).
type Processor interface {
	// Scheme reports which scheme this processor implements.
	Scheme() dictionary.Scheme
	// AcceptsKey decides whether vkey belongs to this scheme's
	// composition given the current buffer state.
	AcceptsKey(vkey rune) bool
	// Append extends the composition buffer with vkey. Returns false
	// if the scheme-specific rule rejects the atom (e.g. Cangjie's
	// 5-radical cap) without mutating the buffer.
	Append(vkey rune) bool
	// Retract removes the last atom. Returns false if the buffer was
	// already empty (the session then discards to S0).
	Retract() bool
	// IsComplete reports whether the current buffer is at a natural
	// lookup point, per this scheme's own definition.
	IsComplete() bool
	// MaterializeKeys produces the Dictionary Store lookup keys for
	// the current buffer.
	MaterializeKeys() Materialized
	// Reset clears the composition buffer.
	Reset()
	// Buffer returns the raw atom sequence, for composition display.
	Buffer() string
	// Recapitalize reapplies this composition's capitalization pattern
	// to a dictionary match before it's offered as a candidate. Every
	// scheme but English is a no-op passthrough.
	Recapitalize(word string) string
}

// SyllableValidator reports whether key is a real syllable for a given
// scheme, backed by whatever dictionary is actually loaded. Passed to
// New so Pinyin's segmenter validates against real data instead of a
// hardcoded syllable table.
type SyllableValidator func(scheme dictionary.Scheme, key string) bool

// New constructs the Processor for s. validator may be nil, in which
// case Pinyin falls back to its built-in initial/final heuristic.
func New(s dictionary.Scheme, validator SyllableValidator) (Processor, error) {
	switch s {
	case dictionary.Bopomofo:
		return newBopomofoProcessor(), nil
	case dictionary.Cangjie:
		return newCangjieProcessor(), nil
	case dictionary.Wubi:
		return newWubiProcessor(), nil
	case dictionary.Pinyin:
		return newPinyinProcessor(validator), nil
	case dictionary.English:
		return newEnglishProcessor(), nil
	case dictionary.Japanese:
		return newJapaneseProcessor(), nil
	default:
		return nil, fmt.Errorf("unsupported scheme %v", s)
	}
}
