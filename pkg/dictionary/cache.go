package dictionary

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	engerrors "github.com/maidos/ime-engine/pkg/errors"

	"github.com/charmbracelet/log"
)

const defaultChunkSize = 10000

const hashFilename = "source.hash"

// sourceHash returns the hex sha256 of a scheme's JSON source file.
func sourceHash(sourcePath string) (string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// cacheIsFresh reports whether cacheDir's recorded source hash matches
// the current content hash of sourcePath.
func cacheIsFresh(sourceHashValue, cacheDir string) bool {
	recorded, err := os.ReadFile(filepath.Join(cacheDir, hashFilename))
	if err != nil {
		return false
	}
	return string(recorded) == sourceHashValue
}

// loadJSONSource reads a scheme's JSON source file: an array of Entry
// objects. A malformed source yields a dictionary LoadError and leaves
// the scheme unavailable per §4.1's failure semantics.
func loadJSONSource(sourcePath string) ([]Entry, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, engerrors.Wrap(engerrors.KindDictionaryLoad, fmt.Sprintf("reading source %s", sourcePath), err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, engerrors.Wrap(engerrors.KindDictionaryLoad, fmt.Sprintf("parsing source %s", sourcePath), err)
	}
	return entries, nil
}

// buildCache splits entries into chunkSize-sized chunk files under
// cacheDir, each pre-sorted by the deterministic tie-break order, and
// records the source hash sidecar once every chunk has been written
// (so a crash mid-build leaves no hash file and is detected as stale).
func buildCache(cacheDir string, entries []Entry, sourceHashValue string, chunkSize int) ([]ChunkInfo, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, err
	}

	sortEntries(entries)

	var chunks []ChunkInfo
	for id, start := 1, 0; start < len(entries); id, start = id+1, start+chunkSize {
		end := min(start+chunkSize, len(entries))
		slice := entries[start:end]
		filename := filepath.Join(cacheDir, chunkFilename(id))
		if err := writeChunk(filename, slice); err != nil {
			return nil, fmt.Errorf("writing chunk %d: %w", id, err)
		}
		chunks = append(chunks, ChunkInfo{ID: id, Filename: filename, WordCount: len(slice)})
	}
	if len(entries) == 0 {
		// still produce an (empty) chunk so callers relying on at
		// least one chunk file existing have something to glob.
		filename := filepath.Join(cacheDir, chunkFilename(1))
		if err := writeChunk(filename, nil); err != nil {
			return nil, err
		}
		chunks = append(chunks, ChunkInfo{ID: 1, Filename: filename, WordCount: 0})
	}

	// Atomic hash publish: write to a tmp file then rename, same
	// pattern as the user dictionary's durable write (§4.6).
	tmpPath := filepath.Join(cacheDir, hashFilename+".tmp")
	if err := os.WriteFile(tmpPath, []byte(sourceHashValue), 0644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, filepath.Join(cacheDir, hashFilename)); err != nil {
		return nil, err
	}

	log.Debugf("built cache for %s: %d chunks, %d entries", filepath.Base(cacheDir), len(chunks), len(entries))
	return chunks, nil
}

// scanChunks lists the chunk files already present in cacheDir, in ID order.
func scanChunks(cacheDir string) ([]ChunkInfo, error) {
	pattern := filepath.Join(cacheDir, "dict_*.bin")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	chunks := make([]ChunkInfo, 0, len(files))
	for _, file := range files {
		var id int
		if _, err := fmt.Sscanf(filepath.Base(file), "dict_%04d.bin", &id); err != nil {
			continue
		}
		count, err := chunkWordCount(file)
		if err != nil {
			log.Warnf("failed to read chunk header for %s: %v", file, err)
			continue
		}
		chunks = append(chunks, ChunkInfo{ID: id, Filename: file, WordCount: count})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}
