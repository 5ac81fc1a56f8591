package session

import (
	"time"

	"github.com/maidos/ime-engine/pkg/dictionary"
)

// UserCandidate is one user-dictionary hit, shaped like dictionary.Entry
// plus the recency timestamp the Ranker's recency bonus needs. Defined
// here rather than in pkg/userdict so this package never has to import
// its concrete backend: pkg/userdict implements UserDictProvider and
// imports this type from here instead, keeping the dependency one-way.
type UserCandidate struct {
	Text      string
	Frequency uint32
	LastUsed  time.Time
}

// UserDictProvider is the user dictionary's read/write surface as the
// session needs it. A session with a nil provider simply never mixes in
// user entries or records commits.
type UserDictProvider interface {
	// Lookup returns user entries matching key under scheme, in no
	// particular order, since Rank re-sorts everything.
	Lookup(scheme dictionary.Scheme, key string) []UserCandidate
	// RecordUse bumps text's frequency/last-used signal for scheme if
	// text is already a user entry; other text is left untouched (no
	// entry is created). Called once per commit, after the candidate
	// text is finalized.
	RecordUse(scheme dictionary.Scheme, text string)
}
