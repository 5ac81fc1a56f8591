// Package dictionary implements the Dictionary Store (C1): it loads
// per-scheme phonetic/shape→character mappings from JSON sources, caches
// them as chunked binary files validated by content hash, indexes them
// for each scheme's matching rule, and answers T/S conversion queries.
//
// Each scheme's source lives at <source_dir>/<scheme>.json and is
// compiled into chunked cache files at <cache_dir>/<scheme>/dict_XXXX.bin
// (dict_0001.bin, dict_0002.bin, ...), mirroring the chunk-file
// convention the rest of the engine's tooling expects. A sidecar
// <cache_dir>/<scheme>/source.hash records the sha256 of the JSON
// source that produced the chunks currently on disk; a mismatch means
// the cache is stale and must be rebuilt.
package dictionary

import (
	"fmt"
	"sort"
	"strings"
)

// Scheme is the closed set of input schemes the Dictionary Store indexes.
type Scheme int

const (
	Bopomofo Scheme = iota
	Cangjie
	Wubi
	Pinyin
	English
	Japanese
)

var schemeNames = [...]string{"bopomofo", "cangjie", "wubi", "pinyin", "english", "japanese"}

// String returns the scheme's canonical lowercase name, also used as its
// source/cache directory name.
func (s Scheme) String() string {
	if int(s) < 0 || int(s) >= len(schemeNames) {
		return "unknown"
	}
	return schemeNames[s]
}

// ParseScheme maps a config/CLI string to a Scheme.
func ParseScheme(name string) (Scheme, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range schemeNames {
		if n == name {
			return Scheme(i), true
		}
	}
	return 0, false
}

// AllSchemes lists every scheme in a stable order, for init and CLI listing.
func AllSchemes() []Scheme {
	return []Scheme{Bopomofo, Cangjie, Wubi, Pinyin, English, Japanese}
}

// MatchMode is the key-matching rule a scheme's lookups use, per §4.1.
type MatchMode int

const (
	MatchExact MatchMode = iota
	MatchPrefix
	MatchSegmentedSyllable
	MatchPerSyllable
	MatchMorphological
)

// MatchMode returns the matching rule the Dictionary Store applies for
// this scheme's lookups: exact for Cangjie/Wubi, prefix for English,
// segmented-syllable for Pinyin, per-syllable for Bopomofo, morphological
// for Japanese kana. Store.Lookup only distinguishes MatchPrefix; every
// other mode is an exact match on the key pkg/scheme has materialized.
func (s Scheme) MatchMode() MatchMode {
	switch s {
	case Cangjie, Wubi:
		return MatchExact
	case English:
		return MatchPrefix
	case Pinyin:
		return MatchSegmentedSyllable
	case Bopomofo:
		return MatchPerSyllable
	case Japanese:
		return MatchMorphological
	default:
		return MatchExact
	}
}

// Entry is a single Dictionary Entry: a key (scheme-specific input atom
// sequence), its output text, frequency rank, and optional tags.
// Several entries may share a key within a scheme, and values are not
// required to be unique either.
type Entry struct {
	Key       string   `json:"key"`
	Value     string   `json:"value"`
	Frequency uint32   `json:"frequency"`
	Tags      []string `json:"tags,omitempty"`
}

// sortEntries orders entries by (frequency descending, key-length
// descending, lexicographic ascending) per §4.1's deterministic
// tie-breaker, which the Candidate Ranker depends on.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if len(a.Key) != len(b.Key) {
			return len(a.Key) > len(b.Key)
		}
		return a.Value < b.Value
	})
}

// ChunkInfo describes one on-disk cache chunk file.
type ChunkInfo struct {
	ID        int
	Filename  string
	WordCount int
}

func chunkFilename(id int) string {
	return fmt.Sprintf("dict_%04d.bin", id)
}
