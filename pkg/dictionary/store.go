package dictionary

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	engerrors "github.com/maidos/ime-engine/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// Config is the subset of pkg/config.DictConfig the store needs; kept as
// its own type so this package doesn't import pkg/config (which in turn
// would create an import cycle once config starts referencing LoadError).
type Config struct {
	SourceDir         string
	CacheDir          string
	MaxResidentChunks int
	ConversionPath    string
	ChunkSize         int
}

// Handle is a loaded, queryable Dictionary Store, shared-immutable
// across sessions after Load returns (per §3's ownership rules).
type Handle = Store

// schemeIndex holds one scheme's patricia trie (keyed by Key, valued by
// []Entry to allow multiple entries sharing a key) plus the chunk
// bookkeeping needed to grow or shrink its memory-resident portion.
type schemeIndex struct {
	mu           sync.RWMutex
	trie         *patricia.Trie
	chunks       []ChunkInfo
	loadedChunks map[int][]Entry
	resident     *lru.Cache[int, struct{}]
}

// Store is the process-wide Dictionary Store (C1). One instance is
// built at engine init and shared read-only by every session.
type Store struct {
	cfg       Config
	mu        sync.RWMutex
	indices   map[Scheme]*schemeIndex
	available map[Scheme]bool
	convTable *ConversionTable
}

// Load reads JSON sources (building or validating the binary chunk
// cache by content hash) for every scheme and indexes them for lookup.
// A malformed source for one scheme marks that scheme unavailable but
// does not fail the overall load, per §4.1's failure semantics.
func Load(cfg Config) (*Handle, error) {
	if cfg.MaxResidentChunks <= 0 {
		cfg.MaxResidentChunks = 8
	}
	store := &Store{
		cfg:       cfg,
		indices:   make(map[Scheme]*schemeIndex),
		available: make(map[Scheme]bool),
	}

	convTable, err := loadConversionTable(cfg.ConversionPath)
	if err != nil {
		log.Warnf("failed to load T/S conversion table: %v", err)
		convTable = &ConversionTable{tToS: map[rune]rune{}, sToT: map[rune]rune{}}
	}
	store.convTable = convTable

	for _, scheme := range AllSchemes() {
		if err := store.loadScheme(scheme); err != nil {
			log.Errorf("scheme %s unavailable: %v", scheme, err)
			store.available[scheme] = false
			continue
		}
		store.available[scheme] = true
	}
	return store, nil
}

func (s *Store) loadScheme(scheme Scheme) error {
	sourcePath := filepath.Join(s.cfg.SourceDir, scheme.String()+".json")
	cacheDir := filepath.Join(s.cfg.CacheDir, scheme.String())

	hash, err := sourceHash(sourcePath)
	if err != nil {
		return engerrors.Wrap(engerrors.KindDictionaryLoad, "hashing source for "+scheme.String(), err)
	}

	var chunks []ChunkInfo
	if cacheIsFresh(hash, cacheDir) {
		chunks, err = scanChunks(cacheDir)
		if err != nil || len(chunks) == 0 {
			log.Warnf("cache scan for %s failed or empty, rebuilding: %v", scheme, err)
			chunks = nil
		}
	}
	if chunks == nil {
		entries, err := loadJSONSource(sourcePath)
		if err != nil {
			return err
		}
		chunks, err = buildCache(cacheDir, entries, hash, s.cfg.ChunkSize)
		if err != nil {
			return engerrors.Wrap(engerrors.KindDictionaryLoad, "building cache for "+scheme.String(), err)
		}
	}

	index := &schemeIndex{
		trie:         patricia.NewTrie(),
		chunks:       chunks,
		loadedChunks: make(map[int][]Entry),
	}
	resident, err := lru.NewWithEvict(s.cfg.MaxResidentChunks, index.onEvictChunk)
	if err != nil {
		return err
	}
	index.resident = resident

	for _, chunk := range chunks {
		if err := index.loadChunk(chunk); err != nil {
			return engerrors.Wrap(engerrors.KindDictionaryLoad, "loading chunk for "+scheme.String(), err)
		}
		if index.resident.Len() >= s.cfg.MaxResidentChunks {
			break
		}
	}

	s.mu.Lock()
	s.indices[scheme] = index
	s.mu.Unlock()
	return nil
}

// loadChunk reads a chunk file, merges its entries into the trie
// grouped by key, and marks it resident; the LRU's eviction callback
// takes care of unloading the oldest chunk if residency is at capacity.
func (idx *schemeIndex) loadChunk(chunk ChunkInfo) error {
	entries, err := readChunk(chunk.Filename)
	if err != nil {
		return err
	}

	idx.mu.Lock()

	grouped := make(map[string][]Entry)
	for _, e := range entries {
		grouped[e.Key] = append(grouped[e.Key], e)
	}
	for key, group := range grouped {
		sortEntries(group)
		if existing := idx.trie.Get(patricia.Prefix(key)); existing != nil {
			group = append(existing.([]Entry), group...)
			sortEntries(group)
			idx.trie.Delete(patricia.Prefix(key))
		}
		idx.trie.Insert(patricia.Prefix(key), group)
	}
	idx.loadedChunks[chunk.ID] = entries
	idx.mu.Unlock()
	// Add may evict, and onEvictChunk takes idx.mu itself.
	idx.resident.Add(chunk.ID, struct{}{})
	return nil
}

// onEvictChunk is the LRU's eviction callback: it drops the chunk's
// entries from memory and rebuilds the trie from what remains resident.
// Rebuilding on every eviction mirrors the teacher's rebuildTrie
// approach; acceptable since eviction is a rare, operator-triggered
// event (SetResidentChunks), not a per-keystroke path.
func (idx *schemeIndex) onEvictChunk(chunkID int, _ struct{}) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.loadedChunks, chunkID)

	idx.trie = patricia.NewTrie()
	for _, entries := range idx.loadedChunks {
		grouped := make(map[string][]Entry)
		for _, e := range entries {
			grouped[e.Key] = append(grouped[e.Key], e)
		}
		for key, group := range grouped {
			sortEntries(group)
			idx.trie.Insert(patricia.Prefix(key), group)
		}
	}
}

// Lookup returns entries matching key per scheme's matching rule,
// ordered by the §4.1 deterministic tie-break, truncated to limit
// (0 means unbounded).
func (s *Store) Lookup(scheme Scheme, key string, limit int) ([]Entry, error) {
	s.mu.RLock()
	available := s.available[scheme]
	index := s.indices[scheme]
	s.mu.RUnlock()

	if !available || index == nil {
		return nil, engerrors.New(engerrors.KindInvalidScheme, fmt.Sprintf("scheme %s unavailable", scheme))
	}

	index.mu.RLock()
	defer index.mu.RUnlock()

	var results []Entry
	switch scheme.MatchMode() {
	case MatchPrefix:
		index.trie.VisitSubtree(patricia.Prefix(key), func(_ patricia.Prefix, item patricia.Item) error {
			results = append(results, item.([]Entry)...)
			return nil
		})
	default:
		if item := index.trie.Get(patricia.Prefix(key)); item != nil {
			results = append(results, item.([]Entry)...)
		}
	}

	sortEntries(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ConvertTS applies the Traditional⇄Simplified conversion table.
func (s *Store) ConvertTS(text string, direction ConvertDirection) string {
	return s.convTable.Convert(text, direction)
}

// HasKey reports whether scheme's dictionary contains an exact entry
// for key, without returning its value. Used by the Pinyin scheme
// processor to validate candidate syllable segmentations against the
// dictionary actually loaded, instead of a hardcoded syllable table.
func (s *Store) HasKey(scheme Scheme, key string) bool {
	s.mu.RLock()
	index, ok := s.indices[scheme]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	index.mu.RLock()
	defer index.mu.RUnlock()
	return index.trie.Get(patricia.Prefix(key)) != nil
}

// IsAvailable reports whether scheme's dictionary loaded successfully;
// set_scheme on an unavailable scheme must fail with InvalidScheme.
func (s *Store) IsAvailable(scheme Scheme) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available[scheme]
}

// LoadStats summarizes one scheme's residency for the diagnostics probe.
// Stats does not fill in LoadTime, so it always reads zero.
type LoadStats struct {
	Scheme          string
	Available       bool
	TotalChunks     int
	ResidentChunks  int
	LoadTime        time.Duration
	TotalEntryCount int
}

// Stats returns per-scheme load statistics.
func (s *Store) Stats() []LoadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]LoadStats, 0, len(s.indices))
	for _, scheme := range AllSchemes() {
		index, ok := s.indices[scheme]
		if !ok {
			stats = append(stats, LoadStats{Scheme: scheme.String(), Available: s.available[scheme]})
			continue
		}
		index.mu.RLock()
		total := 0
		for _, entries := range index.loadedChunks {
			total += len(entries)
		}
		stats = append(stats, LoadStats{
			Scheme:          scheme.String(),
			Available:       s.available[scheme],
			TotalChunks:     len(index.chunks),
			ResidentChunks:  index.resident.Len(),
			TotalEntryCount: total,
		})
		index.mu.RUnlock()
	}
	return stats
}
