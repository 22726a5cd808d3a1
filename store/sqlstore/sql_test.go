package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

func newSQLiteStore(t *testing.T) *SQLCanvasStore {
	dsn := filepath.Join(t.TempDir(), "canvas.db")
	sqlStore, err := NewSQLCanvasStore(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })
	return sqlStore
}

func TestRebind(t *testing.T) {
	pg := &SQLCanvasStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLCanvasStore{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewSQLCanvasStore(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestSQLite_UpsertAndEnumerate(t *testing.T) {
	sqlStore := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, sqlStore.Ping(ctx))
	require.NoError(t, sqlStore.Set(ctx, models.PixelRecord{X: 3, Y: 3, Color: "#ff0000", WalletAddress: models.StringPtr("0xa")}))
	require.NoError(t, sqlStore.Set(ctx, models.PixelRecord{X: 3, Y: 3, Color: "#00ff00", WalletAddress: models.StringPtr("0xb")}))
	require.NoError(t, sqlStore.Set(ctx, models.PixelRecord{X: 0, Y: 1, Color: "white"}))

	got, err := sqlStore.Get(ctx, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", got.Color)
	assert.Equal(t, "0xb", got.Wallet())

	all, err := sqlStore.EnumerateAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_LegacyRowAndDelete(t *testing.T) {
	sqlStore := newSQLiteStore(t)
	ctx := context.Background()

	_, err := sqlStore.db.Exec(`INSERT INTO pixels (key, value) VALUES ('8,9', '#0000ff'), ('junk', '#0000ff')`)
	require.NoError(t, err)

	all, err := sqlStore.EnumerateAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.PixelRecord{X: 8, Y: 9, Color: "#0000ff"}, all[0])

	require.NoError(t, sqlStore.Delete(ctx, 8, 9))
	_, err = sqlStore.Get(ctx, 8, 9)
	assert.True(t, eris.Is(err, store.ErrPixelNotFound))
}

func TestSQLite_History(t *testing.T) {
	sqlStore := newSQLiteStore(t)
	ctx := context.Background()

	entries := []models.HistoryEntry{
		{EventId: "01", Pixel: models.PixelRecord{X: 1, Y: 1, Color: "#111111"}},
		{EventId: "02", Pixel: models.PixelRecord{X: 1, Y: 1, Color: "#222222"}},
		{EventId: "03", Pixel: models.PixelRecord{X: 2, Y: 2, Color: "#333333"}},
	}
	unprocessed, err := sqlStore.AppendHistory(ctx, entries)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	history, err := sqlStore.GetHistory(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "02", history[0].EventId)
	assert.Equal(t, "#222222", history[0].Pixel.Color)
}
