package userdict

import (
	"encoding/json"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v4"
)

// badgerBackend stores the user dictionary as one row per entry in an
// embedded Badger store, keyed by scheme/key/value so Save can replace
// the whole set transactionally without a rolling-backup file of its
// own -- Badger's WAL plus value-log already gives crash safety, the
// alternative backend §4.6 leaves room for beyond the default JSON
// file.
type badgerBackend struct {
	db  *badger.DB
	log *log.Logger
}

func newBadgerBackend(path string, l *log.Logger) (*badgerBackend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerBackend{db: db, log: l}, nil
}

func entryKey(e Entry) []byte {
	return []byte(e.Scheme.String() + "\x00" + e.Key + "\x00" + e.Value)
}

func (b *badgerBackend) Load() ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the store's entire contents with entries in one
// transaction, dropping rows for anything no longer present.
func (b *badgerBackend) Save(entries []Entry) error {
	return b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			stale = append(stale, k)
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := txn.Set(entryKey(e), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBackend) Close() error {
	return b.db.Close()
}
