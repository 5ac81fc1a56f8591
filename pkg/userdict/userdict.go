// Package userdict implements the User Dictionary (C6): durable per-user
// additions layered on top of the read-only Dictionary Store, keyed the
// same way (scheme, input key) but owned exclusively by this package on
// disk for the lifetime add-commit to remove or shutdown (§3).
//
// Entries persist through one of two interchangeable backends selected
// by config.UserDictConfig.Backend: "json" (the default, a single
// on-disk file written via copy-backup/write-tmp/rename per §4.6) or
// "badger" (an embedded key-value store for hosts with larger user
// dictionaries or that want crash-safe transactional writes without
// the rolling-backup dance). Both satisfy the same backend interface,
// so Dict itself is backend-agnostic.
package userdict

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/maidos/ime-engine/internal/logger"
	"github.com/maidos/ime-engine/pkg/config"
	"github.com/maidos/ime-engine/pkg/dictionary"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
	"github.com/maidos/ime-engine/pkg/session"
)

// Entry is a User Dictionary Entry: the same shape as a Dictionary
// Entry plus AddedAt, per §4's "User Dictionary Entry" type.
type Entry struct {
	Scheme    dictionary.Scheme `json:"scheme"`
	Key       string            `json:"key"`
	Value     string            `json:"value"`
	Frequency uint32            `json:"frequency"`
	Tags      []string          `json:"tags,omitempty"`
	AddedAt   time.Time         `json:"added_at"`
	LastUsed  time.Time         `json:"last_used,omitempty"`
}

// backend is the durability layer Dict builds on. Load returns every
// entry currently on disk (or an empty slice on a fresh store); Save
// publishes a complete replacement snapshot.
type backend interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
	Close() error
}

// Dict is the in-memory, read-mostly view of the user dictionary: a
// single-writer mutex guards Add/Remove/Import so every mutation
// publishes a fully-formed new snapshot, matching §5's "writers
// publish new immutable snapshots under a single-writer mutex" model.
type Dict struct {
	mu sync.RWMutex

	backend backend
	log     *log.Logger

	entries []Entry
}

var _ session.UserDictProvider = (*Dict)(nil)

// Open loads the user dictionary using the backend named by cfg.Backend
// ("json" by default, or "badger"). A JSON parse failure triggers the
// backend's own auto-recovery from its rolling backup; if that also
// fails, Open logs a diagnostic event and starts empty rather than
// refusing to start the engine.
func Open(cfg config.UserDictConfig) (*Dict, error) {
	l := logger.New("userdict")

	var b backend
	switch cfg.Backend {
	case "badger":
		bb, err := newBadgerBackend(cfg.Path, l)
		if err != nil {
			return nil, engerrors.Wrap(engerrors.KindUserDictIO, "open badger user dictionary", err)
		}
		b = bb
	default:
		b = newJSONBackend(cfg.Path, l)
	}

	entries, err := b.Load()
	if err != nil {
		// Both backends already attempt their own recovery internally;
		// a surviving error here means recovery failed too.
		l.Error("user dictionary load failed, starting empty", "err", err)
		entries = nil
	}

	return &Dict{backend: b, log: l, entries: entries}, nil
}

// Close releases the backend's resources (a no-op for the JSON
// backend, a store close for Badger).
func (d *Dict) Close() error {
	return d.backend.Close()
}

// Lookup satisfies session.UserDictProvider: candidates added under the
// given scheme whose key exactly matches.
func (d *Dict) Lookup(scheme dictionary.Scheme, key string) []session.UserCandidate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []session.UserCandidate
	for _, e := range d.entries {
		if e.Scheme == scheme && e.Key == key {
			out = append(out, session.UserCandidate{
				Text:      e.Value,
				Frequency: e.Frequency,
				LastUsed:  e.LastUsed,
			})
		}
	}
	return out
}

// RecordUse satisfies session.UserDictProvider: a commit landed on text
// under scheme. Only already-added entries track usage -- a commit's
// only identity here is its final text, not the key that produced it,
// so there's nothing to promote for dictionary-only candidates. Bumps
// every matching entry (a user may have added the same text under more
// than one key) and persists the updated snapshot.
func (d *Dict) RecordUse(scheme dictionary.Scheme, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	touched := false
	now := time.Now()
	for i := range d.entries {
		if d.entries[i].Scheme == scheme && d.entries[i].Value == text {
			d.entries[i].Frequency++
			d.entries[i].LastUsed = now
			touched = true
		}
	}
	if !touched {
		return
	}
	if err := d.backend.Save(d.entries); err != nil {
		d.log.Warn("failed to persist usage update", "scheme", scheme.String(), "text", text, "err", err)
	}
}

// Add inserts or refreshes a user dictionary entry under scheme, then
// persists the snapshot atomically. Re-adding an existing (scheme, key,
// value) triple refreshes its AddedAt and replaces its Tags rather than
// duplicating it.
func (d *Dict) Add(scheme dictionary.Scheme, key, value string, tags []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for i := range d.entries {
		e := &d.entries[i]
		if e.Scheme == scheme && e.Key == key && e.Value == value {
			e.AddedAt = now
			e.Tags = tags
			return d.saveLocked()
		}
	}
	d.entries = append(d.entries, Entry{
		Scheme:  scheme,
		Key:     key,
		Value:   value,
		Tags:    tags,
		AddedAt: now,
	})
	return d.saveLocked()
}

// Remove deletes the user dictionary entry matching (scheme, key,
// value), if present, and persists the result. A no-op (not an error)
// if no such entry exists.
func (d *Dict) Remove(scheme dictionary.Scheme, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.entries[:0:0]
	for _, e := range d.entries {
		if e.Scheme == scheme && e.Key == key && e.Value == value {
			continue
		}
		kept = append(kept, e)
	}
	d.entries = kept
	return d.saveLocked()
}

// Export produces a deterministic JSON encoding of every entry, sorted
// by (scheme, key, value), independent of the active backend.
func (d *Dict) Export() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return encodeSorted(d.entries)
}

// Import replaces the dictionary's contents from a raw user-dictionary
// JSON payload (the same shape Export produces) and persists it.
// Archive payloads are unwrapped by ImportArchive, not here.
func (d *Dict) Import(data []byte) error {
	entries, err := decodeEntries(data)
	if err != nil {
		return engerrors.Wrap(engerrors.KindUserDictIO, "import user dictionary", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = entries
	return d.saveLocked()
}

func (d *Dict) saveLocked() error {
	if err := d.backend.Save(d.entries); err != nil {
		return engerrors.Wrap(engerrors.KindUserDictIO, "persist user dictionary", err)
	}
	return nil
}

func sortedCopy(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scheme != out[j].Scheme {
			return out[i].Scheme < out[j].Scheme
		}
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return out
}
