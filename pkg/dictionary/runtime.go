package dictionary

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// ResidencyOption describes one selectable dictionary residency level
// for a scheme, from fewest chunks (fastest cold start, fewest words)
// to every available chunk resident.
type ResidencyOption struct {
	ChunkCount int
	WordCount  int
}

// ResidencyOptions reports the selectable chunk-count levels for scheme,
// used by a settings host to offer a "dictionary size" control.
func (s *Store) ResidencyOptions(scheme Scheme) ([]ResidencyOption, error) {
	s.mu.RLock()
	index, ok := s.indices[scheme]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scheme %s not loaded", scheme)
	}

	index.mu.RLock()
	defer index.mu.RUnlock()

	options := make([]ResidencyOption, 0, len(index.chunks))
	total := 0
	for i, chunk := range index.chunks {
		total += chunk.WordCount
		options = append(options, ResidencyOption{ChunkCount: i + 1, WordCount: total})
	}
	return options, nil
}

// SetResidentChunks grows or shrinks scheme's memory-resident chunk
// count toward target, loading additional chunks or letting the LRU
// evict the least-recently-loaded ones. Used by the settings host to
// trade memory for dictionary coverage at runtime, outside any
// in-progress composition (the facade enforces that precondition).
func (s *Store) SetResidentChunks(scheme Scheme, target int) error {
	s.mu.RLock()
	index, ok := s.indices[scheme]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("scheme %s not loaded", scheme)
	}
	if target < 1 {
		return fmt.Errorf("minimum resident chunk count is 1")
	}

	index.mu.RLock()
	available := len(index.chunks)
	current := index.resident.Len()
	index.mu.RUnlock()

	if target > available {
		return fmt.Errorf("requested %d chunks but only %d are available", target, available)
	}
	if target == current {
		return nil
	}

	// The LRU guards itself and runs onEvictChunk (which takes index.mu)
	// after releasing its own lock, so index.mu must not be held here.
	index.resident.Resize(target)

	if target > current {
		for _, chunk := range index.chunks {
			index.mu.RLock()
			_, loaded := index.loadedChunks[chunk.ID]
			residentLen := index.resident.Len()
			index.mu.RUnlock()
			if loaded || residentLen >= target {
				continue
			}
			if err := index.loadChunk(chunk); err != nil {
				log.Warnf("failed to load chunk %d for %s: %v", chunk.ID, scheme, err)
			}
		}
	}

	log.Debugf("scheme %s resident chunks: %d -> %d", scheme, current, target)
	return nil
}
