package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"binance-signal-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

var bookKey = []byte("position_book")

// badgerRepository is the BadgerDB implementation of the PositionRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) a BadgerDB directory at dbPath.
func NewBadgerRepository(dbPath string) (PositionRepository, error) {
	return openBadger(badger.DefaultOptions(dbPath))
}

// NewInMemoryRepository returns a repository that lives only in memory.
func NewInMemoryRepository() (PositionRepository, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (PositionRepository, error) {
	// Badger's own logging would interleave with ours; errors are still returned.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerRepository{db: db}, nil
}

// SaveBook marshals the book to JSON and stores it under a single key.
func (r *badgerRepository) SaveBook(book *models.PositionBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bookKey, data)
	})
}

// LoadBook returns (nil, nil) when nothing has been saved yet.
func (r *badgerRepository) LoadBook() (*models.PositionBook, error) {
	var book models.PositionBook

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bookKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("position book value is empty in database")
			}
			return json.Unmarshal(val, &book)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
