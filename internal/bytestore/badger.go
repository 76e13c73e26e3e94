package bytestore

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store backed by an embedded Badger database. Suited to
// long-running daemon use where the cache outlives many analysis sessions.
type Badger struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger database at dir.
func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Get(key string) ([]byte, bool) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b *Badger) Put(key string, data []byte) {
	_ = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}
