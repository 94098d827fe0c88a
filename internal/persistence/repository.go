package persistence

import "binance-signal-bot-go/internal/models"

// PositionRepository defines the interface for position persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the position tracker.
type PositionRepository interface {
	// SaveBook atomically replaces the stored position book.
	SaveBook(book *models.PositionBook) error

	// LoadBook loads the position book from storage.
	// If no book is found, it should return (nil, nil).
	LoadBook() (*models.PositionBook, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
