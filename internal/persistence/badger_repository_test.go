package persistence

import (
	"testing"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerRepository_EmptyLoad(t *testing.T) {
	repo, err := NewInMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	book, err := repo.LoadBook()
	require.NoError(t, err)
	assert.Nil(t, book, "no saved book is not an error")
}

func TestBadgerRepository_SaveAndLoad(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	opened := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	book := &models.PositionBook{
		Version: models.PositionBookVersion,
		Positions: map[string]models.Position{
			"BTCUSDT": {Symbol: "BTCUSDT", Quantity: 0.001, Price: 60000, OpenedAt: opened, OrderID: 42},
		},
		LastUpdateTime: opened,
	}
	require.NoError(t, repo.SaveBook(book))

	loaded, err := repo.LoadBook()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.PositionBookVersion, loaded.Version)
	require.Contains(t, loaded.Positions, "BTCUSDT")
	assert.Equal(t, int64(42), loaded.Positions["BTCUSDT"].OrderID)
	assert.True(t, opened.Equal(loaded.Positions["BTCUSDT"].OpenedAt))

	// last write wins
	book.Positions = map[string]models.Position{}
	require.NoError(t, repo.SaveBook(book))
	loaded, err = repo.LoadBook()
	require.NoError(t, err)
	assert.Empty(t, loaded.Positions)
}
