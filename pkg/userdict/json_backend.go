package userdict

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// jsonBackend implements the default on-disk format: one JSON file at
// path, written via the §4.6 copy-backup/write-tmp/rename sequence.
type jsonBackend struct {
	path string
	log  *log.Logger
}

func newJSONBackend(path string, l *log.Logger) *jsonBackend {
	return &jsonBackend{path: path, log: l}
}

func (b *jsonBackend) backupPath() string {
	return b.path + ".bak"
}

func (b *jsonBackend) tmpPath() string {
	return b.path + ".tmp"
}

// Load reads and parses path. A parse failure triggers automatic
// restore from the rolling backup; if that also fails, Load returns an
// error and the caller starts empty, per §4.6.
func (b *jsonBackend) Load() ([]Entry, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, parseErr := decodeEntries(data)
	if parseErr == nil {
		return entries, nil
	}

	b.log.Warn("user dictionary corrupt, attempting backup restore", "path", b.path, "err", parseErr)
	backup, readErr := os.ReadFile(b.backupPath())
	if readErr != nil {
		return nil, parseErr
	}
	entries, err = decodeEntries(backup)
	if err != nil {
		return nil, parseErr
	}
	b.log.Info("user dictionary restored from backup", "path", b.backupPath())
	return entries, nil
}

// Save writes entries via copy-current-to-.bak, write-.tmp, rename,
// so a crash mid-write never leaves path itself truncated or partial.
func (b *jsonBackend) Save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}

	if current, err := os.ReadFile(b.path); err == nil {
		if err := os.WriteFile(b.backupPath(), current, 0644); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := encodeSorted(entries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(b.tmpPath(), data, 0644); err != nil {
		return err
	}
	return os.Rename(b.tmpPath(), b.path)
}

func (b *jsonBackend) Close() error {
	return nil
}
