package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// writeChunk writes entries to a chunk file in the engine's binary
// format: a little-endian uint32 entry count, followed by each entry as
// {key-len uint16, key bytes, value-len uint16, value bytes, frequency
// uint32, tag-count uint16, tags (len-prefixed)}.
func writeChunk(filename string, entries []Entry) error {
	file, err := os.Create(filename)
	if err != nil {
		log.Errorf("failed to create chunk file %s: %v", filename, err)
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeString(w, e.Key); err != nil {
			return err
		}
		if err := writeString(w, e.Value); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.Frequency); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(len(e.Tags))); err != nil {
			return err
		}
		for _, tag := range e.Tags {
			if err := writeString(w, tag); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readChunk reads every entry from a chunk file written by writeChunk.
func readChunk(filename string) ([]Entry, error) {
	file, err := os.Open(filename)
	if err != nil {
		log.Errorf("failed to open chunk file %s: %v", filename, err)
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		log.Errorf("failed to read chunk header from %s: %v", filename, err)
		return nil, err
	}

	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("reading entry %d key: %w", i, err)
		}
		value, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("reading entry %d value: %w", i, err)
		}
		var freq uint32
		if err := binary.Read(r, binary.LittleEndian, &freq); err != nil {
			return nil, fmt.Errorf("reading entry %d frequency: %w", i, err)
		}
		var tagCount uint16
		if err := binary.Read(r, binary.LittleEndian, &tagCount); err != nil {
			return nil, fmt.Errorf("reading entry %d tag count: %w", i, err)
		}
		tags := make([]string, 0, tagCount)
		for j := uint16(0); j < tagCount; j++ {
			tag, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("reading entry %d tag %d: %w", i, j, err)
			}
			tags = append(tags, tag)
		}
		entries = append(entries, Entry{Key: key, Value: value, Frequency: freq, Tags: tags})
	}
	return entries, nil
}

// chunkWordCount reads only the header of a chunk file, for fast
// directory scans that don't need the full entry list.
func chunkWordCount(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var count uint32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return 0, err
	}
	return int(count), nil
}
